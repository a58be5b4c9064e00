package domain

// TargetKind selects the probe used for a target.
type TargetKind string

const (
	KindPing TargetKind = "ping"
	KindHTTP TargetKind = "http"
)

// Target is a monitored endpoint. Identity is Address.
type Target struct {
	Address     string     `json:"address"`
	Description string     `json:"description"`
	Kind        TargetKind `json:"kind"`
}

// MessageHandle identifies a delivered message so it can be edited later.
// Only the channel that produced it interprets the fields.
type MessageHandle struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// AlertMessage is one notification sent (or attempted) to one recipient
// during an escalation.
type AlertMessage struct {
	RecipientID int64          `json:"recipient_id"`
	Handle      *MessageHandle `json:"handle,omitempty"` // nil if delivery never succeeded
	Target      string         `json:"target"`
}

func (m AlertMessage) Delivered() bool { return m.Handle != nil }
