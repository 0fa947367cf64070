package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SystemSenderID authors the session-open marker and other
// system-generated entries. The zero UUID can never authenticate.
var SystemSenderID = uuid.Nil

// NegotiationSession is the chat channel bound one-to-one with an
// accepted proposal. Created lazily on first accept, never duplicated.
type NegotiationSession struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProposalID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"proposal_id"`

	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Proposal *Proposal `gorm:"foreignKey:ProposalID" json:"proposal,omitempty"`
	Messages []Message `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindSchedule MessageKind = "schedule"
)

type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "PENDING"
	ScheduleConfirmed ScheduleStatus = "CONFIRMED"
	ScheduleRejected  ScheduleStatus = "REJECTED"
)

// Message is one unit in a session's append-only log. Seq defines the
// insertion order within a session; messages are never reordered and
// the schedule sub-state is the only field mutated after creation.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Seq       int64     `gorm:"autoIncrement;uniqueIndex" json:"seq"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null" json:"session_id"`
	SenderID  uuid.UUID `gorm:"type:uuid;index" json:"sender_id"`

	Kind MessageKind `gorm:"type:varchar(20);not null;default:'text'" json:"kind"`
	Text string      `gorm:"type:text" json:"text"`

	// Kind-specific payload: ImagePayload or SchedulePayload.
	Payload datatypes.JSON `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

type ImagePayload struct {
	URL string `json:"url"`
}

type SchedulePayload struct {
	Date   string         `json:"date"`
	Time   string         `json:"time"`
	Status ScheduleStatus `json:"status"`
}

var ErrNoPayload = errors.New("message has no payload")

func (m *Message) SetPayload(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Payload = datatypes.JSON(b)
	return nil
}

func (m *Message) ImagePayload() (*ImagePayload, error) {
	if len(m.Payload) == 0 {
		return nil, ErrNoPayload
	}
	var p ImagePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Message) SchedulePayload() (*SchedulePayload, error) {
	if len(m.Payload) == 0 {
		return nil, ErrNoPayload
	}
	var p SchedulePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// IsSystem reports whether the message was generated by the platform
// rather than a participant.
func (m *Message) IsSystem() bool {
	return m.SenderID == SystemSenderID
}
