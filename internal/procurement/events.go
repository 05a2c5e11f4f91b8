package procurement

import (
	"context"
	"errors"
	"time"
)

// Entity names carried on events and audit records.
const (
	EntityIndent        = "indent"
	EntityAggregation   = "aggregation"
	EntityRFQ           = "rfq"
	EntityQuotation     = "quotation"
	EntityCSRow         = "cs_row"
	EntityCSEntry       = "cs_entry"
	EntityPurchaseOrder = "purchase_order"
)

// Event actions.
const (
	ActionCreated   = "created"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionUpdated   = "updated"
	ActionConfirmed = "confirmed"
)

// Event describes a committed state transition.
type Event struct {
	ID     string            `json:"id"`
	Entity string            `json:"entity"`
	Action string            `json:"action"`
	Number string            `json:"number"`
	RFQNo  string            `json:"rfq_no,omitempty"`
	Actor  string            `json:"actor,omitempty"`
	At     time.Time         `json:"at"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// EventPublisher receives events after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Publishers fans an event out to every publisher and joins their errors.
type Publishers []EventPublisher

// Publish implements EventPublisher.
func (p Publishers) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, pub := range p {
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
