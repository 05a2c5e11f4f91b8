package procurement

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// DerivePurchaseOrders creates one purchase order per approved CS entry of the
// RFQ that has none yet, and stamps the PO number back onto the entry.
func (s *Service) DerivePurchaseOrders(ctx context.Context, rfqNo, actor string) ([]PurchaseOrder, error) {
	if actor == "" {
		return nil, validationErr("purchase order", "actor", "required")
	}
	var created []PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rfq, err := tx.GetRFQ(ctx, rfqNo)
		if err != nil {
			return err
		}
		entries, err := tx.ListCSEntries(ctx, rfqNo)
		if err != nil {
			return err
		}
		approved := 0
		for _, entry := range entries {
			if entry.Status != StatusApproved {
				continue
			}
			approved++
			if entry.PONumber != "" {
				continue
			}
			number, err := s.nextNumber(ctx, PrefixPO)
			if err != nil {
				return err
			}
			po := PurchaseOrder{
				Number:           number,
				RFQNo:            rfq.Number,
				Vendor:           entry.Vendor,
				WarehouseID:      rfq.WarehouseID,
				DeliveryLocation: rfq.DeliveryLocation,
				PaymentTerms:     entry.PaymentTerms,
				Status:           POStatusPending,
				CreatedBy:        actor,
				CreatedAt:        s.clock.Now(),
				Total:            decimal.Zero,
			}
			for _, item := range entry.Items {
				po.Lines = append(po.Lines, POLine{
					ItemCode: item.ItemCode,
					ItemName: item.ItemName,
					UOM:      item.UOM,
					Qty:      item.QtySelected,
					Rate:     item.Rate,
					Amount:   item.TotalAmount,
				})
				po.Total = po.Total.Add(item.TotalAmount)
			}
			if err := tx.SavePurchaseOrder(ctx, po); err != nil {
				return err
			}
			entry.PONumber = number
			if err := tx.SaveCSEntry(ctx, entry); err != nil {
				return err
			}
			created = append(created, po)
		}
		if approved == 0 {
			return validationErr("purchase order", "rfq_no", "%s has no approved comparative statement", rfqNo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, po := range created {
		s.emit(ctx, Event{Entity: EntityPurchaseOrder, Action: ActionCreated, Number: po.Number, RFQNo: po.RFQNo, Actor: actor, At: po.CreatedAt,
			Meta: map[string]string{"vendor_id": po.Vendor.ID, "total": po.Total.String(), "items": poItemCodes(po)}})
	}
	return created, nil
}

// POFilter narrows ListPurchaseOrders.
type POFilter struct {
	Status POStatus
}

// ListPurchaseOrders returns the purchase orders derived from rfqNo.
func (s *Service) ListPurchaseOrders(ctx context.Context, rfqNo string, filter POFilter) ([]PurchaseOrder, error) {
	if _, err := s.repo.GetRFQ(ctx, rfqNo); err != nil {
		return nil, err
	}
	orders, err := s.repo.ListPurchaseOrders(ctx, rfqNo)
	if err != nil {
		return nil, err
	}
	if filter.Status == "" {
		return orders, nil
	}
	out := make([]PurchaseOrder, 0, len(orders))
	for _, po := range orders {
		if po.Status == filter.Status {
			out = append(out, po)
		}
	}
	return out, nil
}

// SetPurchaseOrderStatus moves a purchase order along
// pending, approved, in_transit, delivered. Pending and approved orders can
// also be cancelled.
func (s *Service) SetPurchaseOrderStatus(ctx context.Context, rfqNo, poNumber string, next POStatus, actor string) (PurchaseOrder, error) {
	if actor == "" {
		return PurchaseOrder{}, validationErr("purchase order", "actor", "required")
	}
	switch next {
	case POStatusPending, POStatusApproved, POStatusInTransit, POStatusDelivered, POStatusCancelled:
	default:
		return PurchaseOrder{}, validationErr("purchase order", "status", "unknown status %q", next)
	}
	var (
		updated PurchaseOrder
		from    POStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRFQ(ctx, rfqNo); err != nil {
			return err
		}
		orders, err := tx.ListPurchaseOrders(ctx, rfqNo)
		if err != nil {
			return err
		}
		pos := slices.IndexFunc(orders, func(po PurchaseOrder) bool { return po.Number == poNumber })
		if pos < 0 {
			return referenceErr("purchase order", poNumber)
		}
		po := orders[pos]
		if !po.Status.CanMoveTo(next) {
			return stateErr("purchase order", poNumber, "cannot move from %s to %q", po.Status, next)
		}
		now := s.clock.Now()
		from = po.Status
		po.Status = next
		po.UpdatedBy = actor
		po.UpdatedAt = &now
		updated = po
		return tx.SavePurchaseOrder(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.emit(ctx, Event{Entity: EntityPurchaseOrder, Action: ActionUpdated, Number: updated.Number, RFQNo: updated.RFQNo, Actor: actor, At: *updated.UpdatedAt,
		Meta: map[string]string{"from": string(from), "to": string(next)}})
	return updated, nil
}

func poItemCodes(po PurchaseOrder) string {
	codes := make([]string, 0, len(po.Lines))
	for _, line := range po.Lines {
		codes = append(codes, line.ItemCode)
	}
	return strings.Join(codes, ",")
}
