package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"tile-depot/internal/model"

	"github.com/google/uuid"
)

// ErrMalformedEvent wraps every parse failure of a webhook body.
var ErrMalformedEvent = errors.New("malformed webhook event")

type eventBody struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type     string `json:"type"`
			Livemode bool   `json:"livemode"`
			Data     struct {
				ID         string `json:"id"`
				Type       string `json:"type"`
				Attributes struct {
					Metadata        map[string]any `json:"metadata"`
					PaymentIntentID string         `json:"payment_intent_id"`
					PaymentIntent   *struct {
						ID string `json:"id"`
					} `json:"payment_intent"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseEvent decodes a gateway webhook body. An order id that is present
// but not a UUID is ignored rather than treated as malformed.
func ParseEvent(body []byte) (*model.WebhookEvent, error) {
	var eb eventBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	attrs := eb.Data.Attributes
	if eb.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	if attrs.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}

	ev := &model.WebhookEvent{
		EventID:         eb.Data.ID,
		Type:            attrs.Type,
		ArtifactID:      attrs.Data.ID,
		PaymentIntentID: attrs.Data.Attributes.PaymentIntentID,
		Payload:         json.RawMessage(body),
	}
	if pi := attrs.Data.Attributes.PaymentIntent; ev.PaymentIntentID == "" && pi != nil {
		ev.PaymentIntentID = pi.ID
	}
	if raw, ok := attrs.Data.Attributes.Metadata["order_id"].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			ev.OrderID = &id
		}
	}

	return ev, nil
}
