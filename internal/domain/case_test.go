package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePriority(t *testing.T) {
	for _, v := range []string{"low", "normal", "high", "urgent"} {
		p, ok := ParsePriority(v)
		assert.True(t, ok, v)
		assert.Equal(t, CasePriority(v), p)
	}
	for _, v := range []string{"", "HIGH", "critical"} {
		_, ok := ParsePriority(v)
		assert.False(t, ok, v)
	}
}

func TestMirrorCitizen(t *testing.T) {
	name, phone := "Ana", "+5586999990000"
	c := &Case{}
	c.MirrorCitizen(&CitizenProfile{ID: "cit-1", FullName: &name, PhoneE164: &phone})

	assert.Equal(t, "cit-1", c.CitizenID)
	assert.Equal(t, &name, c.CitizenName)
	assert.Nil(t, c.CitizenEmail)
	assert.Equal(t, &phone, c.CitizenPhone)
}

func TestSystemCallerHasNoActor(t *testing.T) {
	assert.Nil(t, SystemCaller().ActorID())
	assert.Equal(t, "s-1", *Caller{StaffID: "s-1", Role: StaffRoleOperator}.ActorID())
}
