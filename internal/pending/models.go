package pending

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies what a pending action will do once confirmed
type Kind string

const (
	KindRegister      Kind = "register"
	KindConfirmEmail  Kind = "confirm"
	KindResetPassword Kind = "reset_password"
)

// Action is the envelope stored under a one-time token
type Action struct {
	Token     string          `json:"-"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the payload into dest
func (a *Action) Decode(dest interface{}) error {
	if err := json.Unmarshal(a.Payload, dest); err != nil {
		return fmt.Errorf("decode pending payload: %w", err)
	}
	return nil
}

// RegistrationPayload is the form captured at registration start.
// PasswordHash is already hashed; plaintext never reaches Redis.
type RegistrationPayload struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

// EmailPayload carries the address a reset or confirmation link belongs to
type EmailPayload struct {
	Email string `json:"email"`
}
