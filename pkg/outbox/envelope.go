package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

// ActorRef identifies who triggered the change that produced the event.
type ActorRef struct {
	Kind    enums.Actor `json:"kind"`
	Subject string      `json:"subject,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
