package procurement

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// CatalogSource provides warehouse, BOM and vendor lookups.
type CatalogSource interface {
	GetWarehouse(ctx context.Context, id string) (catalog.Warehouse, error)
	GetBOMItems(ctx context.Context, bomID string) ([]catalog.BOMItem, error)
	GetVendors(ctx context.Context, filter catalog.VendorFilter) ([]catalog.Vendor, error)
}

// NumberGenerator issues unique document numbers.
type NumberGenerator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceDeps wires Service collaborators. Audit, Events and Logger are optional.
type ServiceDeps struct {
	Repo    Repository
	Catalog CatalogSource
	Numbers NumberGenerator
	Clock   Clock
	Audit   AuditPort
	Events  EventPublisher
	Logger  *slog.Logger
}

// Service orchestrates the indent to purchase order workflow.
type Service struct {
	repo    Repository
	catalog CatalogSource
	numbers NumberGenerator
	clock   Clock
	audit   AuditPort
	events  EventPublisher
	logger  *slog.Logger
}

// NewService constructs procurement service.
func NewService(deps ServiceDeps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    deps.Repo,
		catalog: deps.Catalog,
		numbers: deps.Numbers,
		clock:   clock,
		audit:   deps.Audit,
		events:  deps.Events,
		logger:  logger,
	}
}

// Catalog exposes the reference data source for read endpoints.
func (s *Service) Catalog() CatalogSource {
	return s.catalog
}

// emit records the audit trail and publishes the event for a committed transition.
// Failures are logged and never surface to the caller.
func (s *Service) emit(ctx context.Context, evt Event) {
	evt.ID = uuid.NewString()
	if evt.At.IsZero() {
		evt.At = s.clock.Now()
	}
	if s.audit != nil {
		meta := make(map[string]any, len(evt.Meta)+1)
		for k, v := range evt.Meta {
			meta[k] = v
		}
		if evt.RFQNo != "" {
			meta["rfq_no"] = evt.RFQNo
		}
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    evt.Actor,
			Action:   strings.ToUpper(evt.Entity + "_" + evt.Action),
			Entity:   "procurement." + evt.Entity,
			EntityID: evt.Number,
			Meta:     meta,
			At:       evt.At,
		})
		if err != nil {
			s.logger.Warn("procurement audit", slog.String("entity", evt.Entity), slog.String("number", evt.Number), slog.Any("error", err))
		}
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Warn("procurement publish", slog.String("entity", evt.Entity), slog.String("number", evt.Number), slog.Any("error", err))
		}
	}
}

func (s *Service) nextNumber(ctx context.Context, prefix string) (string, error) {
	return s.numbers.Next(ctx, prefix)
}

// catalogErr converts catalog misses into reference failures.
func catalogErr(err error, entity, id string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return referenceErr(entity, id)
	}
	return err
}

// vendorsByID resolves every id against the vendor directory.
func (s *Service) vendorsByID(ctx context.Context, ids []string) (map[string]catalog.Vendor, error) {
	if len(ids) == 0 {
		return map[string]catalog.Vendor{}, nil
	}
	vendors, err := s.catalog.GetVendors(ctx, catalog.VendorFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	out := make(map[string]catalog.Vendor, len(vendors))
	for _, v := range vendors {
		out[v.ID] = v
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, referenceErr("vendor", id)
		}
	}
	return out, nil
}

func (s *Service) decide(approver, comment string) Decision {
	now := s.clock.Now()
	return Decision{By: approver, At: &now, Comment: comment}
}

func decisionStatus(approve bool) (Status, string) {
	if approve {
		return StatusApproved, ActionApproved
	}
	return StatusRejected, ActionRejected
}

// matchesSearch reports whether any field contains needle, ignoring case.
func matchesSearch(needle string, fields ...string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return true
	}
	fold := cases.Fold()
	n := fold.String(needle)
	for _, f := range fields {
		if strings.Contains(fold.String(f), n) {
			return true
		}
	}
	return false
}
