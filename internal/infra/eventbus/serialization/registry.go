// Package serialization defines the wire format for events crossing the
// broker: a universal JSON envelope carrying a type tag and the raw payload,
// plus a registry that maps event types to payload factories so consumers can
// materialize concrete domain types.
package serialization

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
)

// universalEnvelope is the on-wire shape of every message. The type tag lets
// consumers pick a payload factory before decoding the payload bytes.
type universalEnvelope struct {
	Type    events.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

var (
	registryMu sync.RWMutex
	registry   = make(map[events.EventType]func() any)
)

// RegisterPayload associates an event type with a factory producing the
// concrete payload value to decode into. Registering the same type twice
// replaces the factory.
func RegisterPayload(t events.EventType, factory func() any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = factory
}

func init() {
	// Every account lifecycle event carries a Notice payload.
	for _, t := range notification.KnownEventTypes() {
		RegisterPayload(t, func() any { return &notification.Notice{} })
	}
}

// SerializeEventEnvelope encodes an event payload into the universal envelope.
func SerializeEventEnvelope(t events.EventType, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload for event %s: %w", t, err)
	}

	env := universalEnvelope{Type: t, Payload: payloadBytes}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope for event %s: %w", t, err)
	}
	return b, nil
}

// UnmarshalUniversalEnvelope decodes the envelope, returning the type tag and
// the still-encoded payload bytes.
func UnmarshalUniversalEnvelope(b []byte) (events.EventType, []byte, error) {
	var env universalEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshaling universal envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("universal envelope missing type tag")
	}
	return env.Type, env.Payload, nil
}

// DeserializePayload materializes the concrete payload for the event type.
// It fails for event types with no registered factory, which consumers treat
// as a malformed message.
func DeserializePayload(t events.EventType, payloadBytes []byte) (any, error) {
	registryMu.RLock()
	factory, ok := registry[t]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no payload registered for event type %s", t)
	}

	payload := factory()
	if err := json.Unmarshal(payloadBytes, payload); err != nil {
		return nil, fmt.Errorf("unmarshaling payload for event %s: %w", t, err)
	}
	return payload, nil
}
