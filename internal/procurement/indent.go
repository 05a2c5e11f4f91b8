package procurement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
)

// CreateIndentInput describes a new indent.
type CreateIndentInput struct {
	CreatedBy    string            `json:"created_by" validate:"required"`
	WarehouseID  string            `json:"warehouse_id" validate:"required"`
	ExpectedDate time.Time         `json:"expected_date" validate:"required"`
	Comment      string            `json:"comment"`
	BOMID        string            `json:"bom_id"`
	Items        []IndentItemInput `json:"items" validate:"required,min=1,dive"`
}

// IndentItemInput is one requested line. Name, UOM and rate come from the BOM
// when the indent names one.
type IndentItemInput struct {
	ItemCode     string          `json:"item_code" validate:"required"`
	ItemName     string          `json:"item_name"`
	UOM          string          `json:"uom"`
	Rate         decimal.Decimal `json:"rate"`
	AvailableQty decimal.Decimal `json:"available_qty"`
	RequiredQty  decimal.Decimal `json:"required_qty"`
}

// IndentFilter narrows ListIndents.
type IndentFilter struct {
	Search string
	Status Status
}

// CreateIndent validates and stores a pending indent.
func (s *Service) CreateIndent(ctx context.Context, input CreateIndentInput) (Indent, error) {
	if err := checkInput("indent", input); err != nil {
		return Indent{}, err
	}
	wh, err := s.catalog.GetWarehouse(ctx, input.WarehouseID)
	if err != nil {
		return Indent{}, catalogErr(err, "warehouse", input.WarehouseID)
	}
	var bom map[string]catalog.BOMItem
	project := ""
	if input.BOMID != "" {
		items, err := s.catalog.GetBOMItems(ctx, input.BOMID)
		if err != nil {
			return Indent{}, catalogErr(err, "bom", input.BOMID)
		}
		bom = make(map[string]catalog.BOMItem, len(items))
		for _, item := range items {
			bom[item.ItemCode] = item
			if project == "" {
				project = item.Project
			}
		}
	}

	items := make([]IndentItem, 0, len(input.Items))
	seen := make(map[string]struct{}, len(input.Items))
	for _, in := range input.Items {
		if _, dup := seen[in.ItemCode]; dup {
			return Indent{}, validationErr("indent", "items", "item %s listed twice", in.ItemCode)
		}
		seen[in.ItemCode] = struct{}{}
		if !in.RequiredQty.IsPositive() {
			return Indent{}, validationErr("indent", "items."+in.ItemCode+".required_qty", "must be greater than zero")
		}
		item := IndentItem{
			ItemLine:     ItemLine{ItemCode: in.ItemCode, ItemName: in.ItemName, UOM: in.UOM, Rate: in.Rate},
			AvailableQty: in.AvailableQty,
			RequiredQty:  in.RequiredQty,
		}
		if bom != nil {
			ref, ok := bom[in.ItemCode]
			if !ok {
				return Indent{}, referenceErr("bom item", input.BOMID+"/"+in.ItemCode)
			}
			item.ItemName, item.UOM, item.Rate, item.AvailableQty = ref.ItemName, ref.UOM, ref.Rate, ref.AvailableQty
		}
		if item.ItemName == "" || item.UOM == "" {
			return Indent{}, validationErr("indent", "items."+in.ItemCode, "item name and uom are required")
		}
		if item.Rate.IsNegative() {
			return Indent{}, validationErr("indent", "items."+in.ItemCode+".rate", "must not be negative")
		}
		items = append(items, item)
	}

	var created Indent
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.nextNumber(ctx, PrefixIndent)
		if err != nil {
			return err
		}
		created = Indent{
			Number:          number,
			CreatedBy:       input.CreatedBy,
			CreatedAt:       s.clock.Now(),
			WarehouseID:     wh.ID,
			WarehouseName:   wh.Name,
			ExpectedDate:    input.ExpectedDate,
			Comment:         input.Comment,
			BOMID:           input.BOMID,
			Project:         project,
			Items:           items,
			Status:          StatusPending,
			AggregateStatus: NotAggregated,
		}
		return tx.SaveIndent(ctx, created)
	})
	if err != nil {
		return Indent{}, err
	}
	s.emit(ctx, Event{Entity: EntityIndent, Action: ActionCreated, Number: created.Number, Actor: created.CreatedBy, At: created.CreatedAt,
		Meta: map[string]string{"warehouse_id": created.WarehouseID}})
	return created, nil
}

// ApproveIndent moves a pending indent to approved.
func (s *Service) ApproveIndent(ctx context.Context, number, approver, comment string) (Indent, error) {
	return s.decideIndent(ctx, number, approver, comment, true)
}

// RejectIndent moves a pending indent to rejected.
func (s *Service) RejectIndent(ctx context.Context, number, approver, comment string) (Indent, error) {
	return s.decideIndent(ctx, number, approver, comment, false)
}

func (s *Service) decideIndent(ctx context.Context, number, approver, comment string, approve bool) (Indent, error) {
	if approver == "" {
		return Indent{}, validationErr("indent", "approver", "required")
	}
	status, action := decisionStatus(approve)
	var updated Indent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		indent, err := tx.GetIndent(ctx, number)
		if err != nil {
			return err
		}
		if indent.Status != StatusPending {
			return stateErr("indent", number, "status is %s", indent.Status)
		}
		indent.Status = status
		indent.Approval = s.decide(approver, comment)
		updated = indent
		return tx.SaveIndent(ctx, indent)
	})
	if err != nil {
		return Indent{}, err
	}
	s.emit(ctx, Event{Entity: EntityIndent, Action: action, Number: number, Actor: approver})
	return updated, nil
}

// GetIndent returns a single indent.
func (s *Service) GetIndent(ctx context.Context, number string) (Indent, error) {
	return s.repo.GetIndent(ctx, number)
}

// ListIndents returns indents matching the filter in creation order.
func (s *Service) ListIndents(ctx context.Context, filter IndentFilter) ([]Indent, error) {
	indents, err := s.repo.ListIndents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Indent, 0, len(indents))
	for _, indent := range indents {
		if filter.Status != "" && indent.Status != filter.Status {
			continue
		}
		if !matchesSearch(filter.Search, indent.Number, indent.WarehouseID, indent.WarehouseName, string(indent.Status), indent.CreatedBy) {
			continue
		}
		out = append(out, indent)
	}
	return out, nil
}
