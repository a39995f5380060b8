package domain

// Caller is the explicit authorization context passed into every core operation.
type Caller struct {
	StaffID       string
	Role          StaffRole
	SecretariatID *string
	IP            string
	UserAgent     string
}

// SystemCaller is used for automation and scheduled work.
func SystemCaller() Caller {
	return Caller{Role: StaffRoleSystem}
}

// IsSystem reports whether the caller is the platform itself.
func (c Caller) IsSystem() bool {
	return c.Role == StaffRoleSystem
}

// ActorID returns the user id to record in audit rows, nil for system work.
func (c Caller) ActorID() *string {
	if c.IsSystem() || c.StaffID == "" {
		return nil
	}
	id := c.StaffID
	return &id
}
