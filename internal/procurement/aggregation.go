package procurement

import (
	"context"
	"strings"
	"time"
)

// AggregateInput lists the approved indents to merge.
type AggregateInput struct {
	IndentNumbers []string   `json:"indent_numbers"`
	ExpectedDate  *time.Time `json:"expected_date"`
	CreatedBy     string     `json:"created_by" validate:"required"`
}

// Aggregate merges the items of two or more approved indents and marks every
// source indent as aggregated. Either all of that happens or none of it does.
func (s *Service) Aggregate(ctx context.Context, input AggregateInput) (Aggregation, error) {
	if err := checkInput("aggregation", input); err != nil {
		return Aggregation{}, err
	}
	if len(input.IndentNumbers) < 2 {
		return Aggregation{}, validationErr("aggregation", "indent_numbers", "at least two indents are required")
	}
	seen := make(map[string]struct{}, len(input.IndentNumbers))
	for _, no := range input.IndentNumbers {
		if _, dup := seen[no]; dup {
			return Aggregation{}, validationErr("aggregation", "indent_numbers", "indent %s listed twice", no)
		}
		seen[no] = struct{}{}
	}

	var created Aggregation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sources := make([]Indent, 0, len(input.IndentNumbers))
		for _, no := range input.IndentNumbers {
			indent, err := tx.GetIndent(ctx, no)
			if err != nil {
				return err
			}
			if indent.Status != StatusApproved {
				return validationErr("aggregation", "indent_numbers", "indent %s is %s, only approved indents can be aggregated", no, indent.Status)
			}
			if indent.AggregateStatus == Aggregated {
				return validationErr("aggregation", "indent_numbers", "indent %s already aggregated into %s", no, indent.AggregationNo)
			}
			rfqNo, err := liveRFQFor(ctx, tx, no)
			if err != nil {
				return err
			}
			if rfqNo != "" {
				return validationErr("aggregation", "indent_numbers", "indent %s is already requested by %s", no, rfqNo)
			}
			sources = append(sources, indent)
		}
		items, err := mergeIndentItems(sources)
		if err != nil {
			return err
		}
		number, err := s.nextNumber(ctx, PrefixAggregation)
		if err != nil {
			return err
		}
		created = Aggregation{
			Number:        number,
			CreatedBy:     input.CreatedBy,
			CreatedAt:     s.clock.Now(),
			ExpectedDate:  cloneTime(input.ExpectedDate),
			WarehouseID:   sources[0].WarehouseID,
			WarehouseName: sources[0].WarehouseName,
			IndentNumbers: append([]string(nil), input.IndentNumbers...),
			Items:         items,
		}
		if err := tx.SaveAggregation(ctx, created); err != nil {
			return err
		}
		for _, indent := range sources {
			indent.AggregateStatus = Aggregated
			indent.AggregationNo = number
			if err := tx.SaveIndent(ctx, indent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Aggregation{}, err
	}
	s.emit(ctx, Event{Entity: EntityAggregation, Action: ActionCreated, Number: created.Number, Actor: created.CreatedBy, At: created.CreatedAt,
		Meta: map[string]string{"indents": strings.Join(created.IndentNumbers, ",")}})
	return created, nil
}

// mergeIndentItems groups by item code in first-seen order, summing required
// quantities. Names come from the first occurrence; units must agree.
func mergeIndentItems(sources []Indent) ([]AggregatedItem, error) {
	var items []AggregatedItem
	index := make(map[string]int)
	for _, indent := range sources {
		for _, line := range indent.Items {
			pos, ok := index[line.ItemCode]
			if !ok {
				index[line.ItemCode] = len(items)
				items = append(items, AggregatedItem{
					ItemCode:         line.ItemCode,
					ItemName:         line.ItemName,
					UOM:              line.UOM,
					RequiredQuantity: line.RequiredQty,
					IndentNumbers:    []string{indent.Number},
				})
				continue
			}
			agg := &items[pos]
			if !strings.EqualFold(agg.UOM, line.UOM) {
				return nil, validationErr("aggregation", "items."+line.ItemCode+".uom", "indent %s uses %s, expected %s", indent.Number, line.UOM, agg.UOM)
			}
			agg.RequiredQuantity = agg.RequiredQuantity.Add(line.RequiredQty)
			agg.IndentNumbers = append(agg.IndentNumbers, indent.Number)
		}
	}
	return items, nil
}

// GetAggregation returns a single aggregation.
func (s *Service) GetAggregation(ctx context.Context, number string) (Aggregation, error) {
	return s.repo.GetAggregation(ctx, number)
}

// ListAggregations returns aggregations in creation order.
func (s *Service) ListAggregations(ctx context.Context) ([]Aggregation, error) {
	return s.repo.ListAggregations(ctx)
}
