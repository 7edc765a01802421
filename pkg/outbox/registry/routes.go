// Package registry routes outbox rows to their Pub/Sub topic and decodes
// the typed payload each event type carries.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Route is where one event type is published and how its payload decodes.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// Decoded is an outbox row that passed validation.
type Decoded struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type Router struct {
	routes map[enums.OutboxEventType]Route
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) Route {
	return Route{
		EventType:     eventType,
		AggregateType: aggregate,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewRouter sends every order and return event to the orders topic.
func NewRouter(cfg config.PubSubConfig) (*Router, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	r := &Router{routes: map[enums.OutboxEventType]Route{}}
	for _, rt := range []Route{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder),
		route[payloads.OrderCanceledEvent](enums.EventOrderCanceled, enums.AggregateOrder),
		route[payloads.ReturnRequestedEvent](enums.EventReturnRequested, enums.AggregateReturn),
		route[payloads.ReturnDecidedEvent](enums.EventReturnDecided, enums.AggregateReturn),
		route[payloads.ReturnRefundedEvent](enums.EventReturnRefunded, enums.AggregateReturn),
	} {
		rt.Topic = cfg.OrdersTopic
		r.routes[rt.EventType] = rt
	}
	return r, nil
}

// Resolve checks the row against its route and decodes the payload. Every
// failure here is permanent: retrying the same bytes cannot succeed.
func (r *Router) Resolve(event models.OutboxEvent) (*Decoded, error) {
	rt, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("no route for event type %q", event.EventType))
	case rt.AggregateType != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row says %s", event.EventType, rt.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("row has no aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", event.EventType))
	}
	payload, err := rt.decode(envelope.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &Decoded{Route: rt, Envelope: envelope, Payload: payload}, nil
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return "permanent: " + p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
