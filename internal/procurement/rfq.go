package procurement

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CreateRFQInput describes a request for quotation against an indent or aggregation.
type CreateRFQInput struct {
	SourceNumber string         `json:"source_number" validate:"required"`
	RFQDate      time.Time      `json:"rfq_date"`
	EndDate      time.Time      `json:"end_date" validate:"required"`
	Description  string         `json:"description"`
	CreatedBy    string         `json:"created_by" validate:"required"`
	Items        []RFQItemInput `json:"items" validate:"required,min=1,dive"`
}

// RFQItemInput assigns candidate vendors to one source item. ProcureQty
// defaults to the source's required quantity.
type RFQItemInput struct {
	ItemCode   string           `json:"item_code" validate:"required"`
	ProcureQty *decimal.Decimal `json:"procure_qty"`
	VendorIDs  []string         `json:"vendor_ids"`
}

// RFQFilter narrows ListRFQs.
type RFQFilter struct {
	Search string
	Status Status
}

type sourceItem struct {
	code, name, uom string
	required        decimal.Decimal
}

func isAggregationNumber(number string) bool {
	return strings.HasPrefix(number, PrefixAggregation+"-")
}

// CreateRFQ validates vendor assignments against the source and stores a pending RFQ.
func (s *Service) CreateRFQ(ctx context.Context, input CreateRFQInput) (RFQ, error) {
	if err := checkInput("rfq", input); err != nil {
		return RFQ{}, err
	}
	rfqDate := input.RFQDate
	if rfqDate.IsZero() {
		rfqDate = s.clock.Now()
	}
	if input.EndDate.Before(truncateDay(rfqDate)) {
		return RFQ{}, validationErr("rfq", "end_date", "must not be before the rfq date")
	}

	source, warehouseID, items, err := s.resolveSource(ctx, s.repo, input.SourceNumber)
	if err != nil {
		return RFQ{}, err
	}
	wh, err := s.catalog.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return RFQ{}, catalogErr(err, "warehouse", warehouseID)
	}

	assignments := make(map[string]RFQItemInput, len(input.Items))
	var vendorIDs []string
	for _, in := range input.Items {
		if _, dup := assignments[in.ItemCode]; dup {
			return RFQ{}, validationErr("rfq", "items", "item %s assigned twice", in.ItemCode)
		}
		assignments[in.ItemCode] = in
		if len(in.VendorIDs) == 0 {
			return RFQ{}, validationErr("rfq", "items."+in.ItemCode+".vendor_ids", "at least one vendor is required")
		}
		seen := make(map[string]struct{}, len(in.VendorIDs))
		for _, id := range in.VendorIDs {
			if _, dup := seen[id]; dup {
				return RFQ{}, validationErr("rfq", "items."+in.ItemCode+".vendor_ids", "vendor %s listed twice", id)
			}
			seen[id] = struct{}{}
			vendorIDs = append(vendorIDs, id)
		}
	}
	known := make(map[string]sourceItem, len(items))
	for _, item := range items {
		known[item.code] = item
	}
	for _, in := range input.Items {
		if _, ok := known[in.ItemCode]; !ok {
			return RFQ{}, referenceErr("source item", input.SourceNumber+"/"+in.ItemCode)
		}
	}
	vendors, err := s.vendorsByID(ctx, uniqueStrings(vendorIDs))
	if err != nil {
		return RFQ{}, err
	}

	lines := make([]RFQItem, 0, len(items))
	for _, item := range items {
		in, ok := assignments[item.code]
		if !ok {
			return RFQ{}, validationErr("rfq", "items", "item %s from %s has no vendor assignment", item.code, input.SourceNumber)
		}
		procure := item.required
		if in.ProcureQty != nil {
			procure = *in.ProcureQty
		}
		if !procure.IsPositive() {
			return RFQ{}, validationErr("rfq", "items."+item.code+".procure_qty", "must be greater than zero")
		}
		if procure.GreaterThan(item.required) {
			return RFQ{}, validationErr("rfq", "items."+item.code+".procure_qty", "%s exceeds required %s", procure, item.required)
		}
		refs := make([]VendorRef, 0, len(in.VendorIDs))
		for _, id := range in.VendorIDs {
			refs = append(refs, VendorRef{ID: id, Name: vendors[id].Name})
		}
		lines = append(lines, RFQItem{
			ItemCode:    item.code,
			ItemName:    item.name,
			UOM:         item.uom,
			RequiredQty: item.required,
			ProcureQty:  procure,
			Vendors:     refs,
		})
	}

	var created RFQ
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// the source may have changed since it was resolved outside the transaction
		if _, _, _, err := s.resolveSource(ctx, tx, input.SourceNumber); err != nil {
			return err
		}
		number, err := s.nextNumber(ctx, PrefixRFQ)
		if err != nil {
			return err
		}
		location := wh.Location
		if location == "" {
			location = wh.Name
		}
		created = RFQ{
			Number:           number,
			Source:           source,
			WarehouseID:      wh.ID,
			DeliveryLocation: location,
			RFQDate:          rfqDate,
			EndDate:          input.EndDate,
			Description:      input.Description,
			Items:            lines,
			Status:           StatusPending,
			CreatedBy:        input.CreatedBy,
			CreatedAt:        s.clock.Now(),
		}
		return tx.SaveRFQ(ctx, created)
	})
	if err != nil {
		return RFQ{}, err
	}
	s.emit(ctx, Event{Entity: EntityRFQ, Action: ActionCreated, Number: created.Number, RFQNo: created.Number, Actor: created.CreatedBy, At: created.CreatedAt,
		Meta: map[string]string{"source": created.Source.Number}})
	return created, nil
}

func (s *Service) resolveSource(ctx context.Context, tx Reader, number string) (SourceRef, string, []sourceItem, error) {
	if rfqNo, err := liveRFQFor(ctx, tx, number); err != nil {
		return SourceRef{}, "", nil, err
	} else if rfqNo != "" {
		return SourceRef{}, "", nil, stateErr("rfq source", number, "already requested by %s", rfqNo)
	}
	if isAggregationNumber(number) {
		agg, err := tx.GetAggregation(ctx, number)
		if err != nil {
			return SourceRef{}, "", nil, err
		}
		items := make([]sourceItem, 0, len(agg.Items))
		for _, item := range agg.Items {
			items = append(items, sourceItem{code: item.ItemCode, name: item.ItemName, uom: item.UOM, required: item.RequiredQuantity})
		}
		return SourceRef{Kind: SourceAggregation, Number: agg.Number}, agg.WarehouseID, items, nil
	}
	indent, err := tx.GetIndent(ctx, number)
	if err != nil {
		return SourceRef{}, "", nil, err
	}
	if indent.Status != StatusApproved {
		return SourceRef{}, "", nil, stateErr("indent", number, "status is %s, rfq requires an approved indent", indent.Status)
	}
	if indent.AggregateStatus == Aggregated {
		return SourceRef{}, "", nil, stateErr("indent", number, "already aggregated into %s", indent.AggregationNo)
	}
	items := make([]sourceItem, 0, len(indent.Items))
	for _, item := range indent.Items {
		items = append(items, sourceItem{code: item.ItemCode, name: item.ItemName, uom: item.UOM, required: item.RequiredQty})
	}
	return SourceRef{Kind: SourceIndent, Number: indent.Number}, indent.WarehouseID, items, nil
}

// ApproveRFQ moves a pending RFQ to approved.
func (s *Service) ApproveRFQ(ctx context.Context, rfqNo, approver, comment string) (RFQ, error) {
	return s.decideRFQ(ctx, rfqNo, approver, comment, true)
}

// RejectRFQ moves a pending RFQ to rejected.
func (s *Service) RejectRFQ(ctx context.Context, rfqNo, approver, comment string) (RFQ, error) {
	return s.decideRFQ(ctx, rfqNo, approver, comment, false)
}

func (s *Service) decideRFQ(ctx context.Context, rfqNo, approver, comment string, approve bool) (RFQ, error) {
	if approver == "" {
		return RFQ{}, validationErr("rfq", "approver", "required")
	}
	status, action := decisionStatus(approve)
	var updated RFQ
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rfq, err := tx.GetRFQ(ctx, rfqNo)
		if err != nil {
			return err
		}
		if rfq.Status != StatusPending {
			return stateErr("rfq", rfqNo, "status is %s", rfq.Status)
		}
		rfq.Status = status
		rfq.Approval = s.decide(approver, comment)
		updated = rfq
		return tx.SaveRFQ(ctx, rfq)
	})
	if err != nil {
		return RFQ{}, err
	}
	s.emit(ctx, Event{Entity: EntityRFQ, Action: action, Number: rfqNo, RFQNo: rfqNo, Actor: approver})
	return updated, nil
}

// GetRFQ returns a single RFQ.
func (s *Service) GetRFQ(ctx context.Context, rfqNo string) (RFQ, error) {
	return s.repo.GetRFQ(ctx, rfqNo)
}

// ListRFQs returns RFQs matching the filter in creation order.
func (s *Service) ListRFQs(ctx context.Context, filter RFQFilter) ([]RFQ, error) {
	rfqs, err := s.repo.ListRFQs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RFQ, 0, len(rfqs))
	for _, rfq := range rfqs {
		if filter.Status != "" && rfq.Status != filter.Status {
			continue
		}
		if !matchesSearch(filter.Search, rfq.Number, rfq.Source.Number, rfq.DeliveryLocation, string(rfq.Status), rfq.CreatedBy) {
			continue
		}
		out = append(out, rfq)
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// liveRFQFor returns the number of the RFQ still open on sourceNo, or "" when
// every RFQ raised from it was rejected. A source carries at most one.
func liveRFQFor(ctx context.Context, tx Reader, sourceNo string) (string, error) {
	rfqs, err := tx.ListRFQs(ctx)
	if err != nil {
		return "", err
	}
	for _, rfq := range rfqs {
		if rfq.Source.Number == sourceNo && rfq.Status != StatusRejected {
			return rfq.Number, nil
		}
	}
	return "", nil
}
