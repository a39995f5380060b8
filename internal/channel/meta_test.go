package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

func TestWhatsAppSenderPostsTextMessage(t *testing.T) {
	var got whatsAppText
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	phone := "+5586999990000"
	sender := NewWhatsAppSender(MetaConfig{BaseURL: srv.URL, PhoneNumberID: "123", WhatsAppToken: "tok"}, nil)
	res := sender.Send(context.Background(), &domain.Case{ID: "c1", Channel: domain.ChannelWhatsApp, CitizenPhone: &phone}, "olá")

	assert.True(t, res.OK)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "/123/messages", path)
	assert.Equal(t, "5586999990000", got.To)
	assert.Equal(t, "olá", got.Text.Body)
}

func TestWhatsAppSenderReportsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer srv.Close()

	phone := "+5586999990000"
	sender := NewWhatsAppSender(MetaConfig{BaseURL: srv.URL, PhoneNumberID: "123", WhatsAppToken: "tok"}, nil)
	res := sender.Send(context.Background(), &domain.Case{Channel: domain.ChannelWhatsApp, CitizenPhone: &phone}, "x")

	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "invalid recipient")
}

func TestInstagramSenderNeedsRecipient(t *testing.T) {
	sender := NewInstagramSender(MetaConfig{BaseURL: "http://unused", PageID: "p", InstagramKey: "k"}, nil)
	res := sender.Send(context.Background(), &domain.Case{Channel: domain.ChannelInstagram}, "x")
	assert.False(t, res.OK)
	assert.Equal(t, "case has no instagram recipient", res.Error)
}

func TestRouterWithoutSender(t *testing.T) {
	res := NewRouter().Send(context.Background(), &domain.Case{Channel: domain.ChannelWeb}, "x")
	assert.Equal(t, Result{Error: ErrNotConfigured}, res)
}
