package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind says which flow a confirmation mail belongs to
type Kind string

const (
	KindRegister      Kind = "register"
	KindConfirm       Kind = "confirm"
	KindResetPassword Kind = "reset_password"
)

type MessageStatus string

const (
	MessageStatusQueued  MessageStatus = "QUEUED"
	MessageStatusSending MessageStatus = "SENDING"
	MessageStatusSent    MessageStatus = "SENT"
	MessageStatusFailed  MessageStatus = "FAILED"
)

// ConfirmationRequest is what the auth flows hand to a Dispatcher
type ConfirmationRequest struct {
	Kind      Kind
	Template  string
	Recipient string
	Token     string
	BaseURL   string
	// ExpiresAt mirrors the token TTL; the worker drops mail for dead links. Optional.
	ExpiresAt time.Time
}

// ConfirmationMessage is the record published to the confirmation topic
type ConfirmationMessage struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Template  string    `json:"template"`
	Recipient string    `json:"recipient"`
	Token     string    `json:"token"`
	BaseURL   string    `json:"base_url"`

	Status     MessageStatus `json:"status"`
	RetryCount int           `json:"retry_count"`
	LastError  *string       `json:"last_error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	SentAt     *time.Time    `json:"sent_at,omitempty"`
}

func NewConfirmationMessage(req ConfirmationRequest) *ConfirmationMessage {
	msg := &ConfirmationMessage{
		ID:        uuid.New(),
		Kind:      req.Kind,
		Template:  req.Template,
		Recipient: req.Recipient,
		Token:     req.Token,
		BaseURL:   req.BaseURL,
		Status:    MessageStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if !req.ExpiresAt.IsZero() {
		expires := req.ExpiresAt.UTC()
		msg.ExpiresAt = &expires
	}
	return msg
}

// PartitionKey keeps all mail for one recipient on one partition
func (m *ConfirmationMessage) PartitionKey() string {
	return m.Recipient
}

func (m *ConfirmationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Link is the URL the recipient follows to complete the flow
func (m *ConfirmationMessage) Link() string {
	return ConfirmationLink(m.Kind, m.BaseURL, m.Token)
}

func (m *ConfirmationMessage) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

func (m *ConfirmationMessage) MarkSent() {
	now := time.Now().UTC()
	m.Status = MessageStatusSent
	m.SentAt = &now
}

func (m *ConfirmationMessage) MarkFailed(err error) {
	m.Status = MessageStatusFailed
	errorStr := err.Error()
	m.LastError = &errorStr
}
