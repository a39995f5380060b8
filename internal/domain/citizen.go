package domain

import "time"

// CitizenProfile is a citizen identity merged across channels.
type CitizenProfile struct {
	ID                string
	FullName          *string
	Email             *string
	PhoneE164         *string
	WhatsAppID        *string
	InstagramUserID   *string
	InstagramUsername *string
	ConsentAt         *time.Time
	ConsentSource     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CitizenFields is a partial set of profile fields; nil means "not supplied".
type CitizenFields struct {
	FullName          *string
	Email             *string
	PhoneE164         *string
	WhatsAppID        *string
	InstagramUserID   *string
	InstagramUsername *string
	ConsentAt         *time.Time
	ConsentSource     *string
}

// Empty reports whether no field is set.
func (f CitizenFields) Empty() bool {
	return f.FullName == nil && f.Email == nil && f.PhoneE164 == nil && f.WhatsAppID == nil &&
		f.InstagramUserID == nil && f.InstagramUsername == nil && f.ConsentAt == nil && f.ConsentSource == nil
}
