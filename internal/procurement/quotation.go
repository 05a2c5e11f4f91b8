package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SubmitQuotationInput records a vendor's response to an RFQ.
type SubmitQuotationInput struct {
	RFQNo      string             `json:"rfq_no" validate:"required"`
	VendorID   string             `json:"vendor_id" validate:"required"`
	EntryDate  time.Time          `json:"entry_date"`
	Delivery   DeliveryTermsInput `json:"delivery"`
	Services   ServiceFlags       `json:"services"`
	Milestones []MilestoneInput   `json:"milestones" validate:"dive"`
	Items      []ItemOfferInput   `json:"items" validate:"required,min=1,dive"`
	Comment    string             `json:"comment"`
	CreatedBy  string             `json:"created_by" validate:"required"`
}

// DeliveryTermsInput carries the timing fields of a quotation.
type DeliveryTermsInput struct {
	TimeOfDelivery   string    `json:"time_of_delivery" validate:"required"`
	ResponseTimeDays int       `json:"response_time_days" validate:"gte=0"`
	PriceValidity    time.Time `json:"price_validity" validate:"required"`
	DeliveryPeriod   string    `json:"delivery_period" validate:"required"`
}

// MilestoneInput is one payment step.
type MilestoneInput struct {
	Type        string          `json:"type" validate:"required"`
	PaymentType PaymentType     `json:"payment_type" validate:"required,oneof=percent amount"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

// ItemOfferInput is the vendor's quantity and rate for one RFQ item.
type ItemOfferInput struct {
	ItemCode      string          `json:"item_code" validate:"required"`
	CanProvideQty decimal.Decimal `json:"can_provide_qty"`
	Rate          decimal.Decimal `json:"rate"`
}

// SubmitQuotation stores a pending quotation for an approved RFQ.
func (s *Service) SubmitQuotation(ctx context.Context, input SubmitQuotationInput) (Quotation, error) {
	if err := checkInput("quotation", input); err != nil {
		return Quotation{}, err
	}
	milestones, err := buildMilestones(input.Milestones)
	if err != nil {
		return Quotation{}, err
	}
	seen := make(map[string]struct{}, len(input.Items))
	for _, offer := range input.Items {
		if _, dup := seen[offer.ItemCode]; dup {
			return Quotation{}, validationErr("quotation", "items", "item %s offered twice", offer.ItemCode)
		}
		seen[offer.ItemCode] = struct{}{}
		if err := checkOffer(offer.ItemCode, offer.CanProvideQty, offer.Rate); err != nil {
			return Quotation{}, err
		}
	}
	vendors, err := s.vendorsByID(ctx, []string{input.VendorID})
	if err != nil {
		return Quotation{}, err
	}
	vendor := vendors[input.VendorID]
	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = s.clock.Now()
	}

	var created Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rfq, err := tx.GetRFQ(ctx, input.RFQNo)
		if err != nil {
			return err
		}
		items := make([]QuotationItem, 0, len(input.Items))
		for _, offer := range input.Items {
			line, ok := rfq.Item(offer.ItemCode)
			if !ok {
				return referenceErr("rfq item", rfq.Number+"/"+offer.ItemCode)
			}
			if !line.HasVendor(vendor.ID) {
				return referenceErr("rfq vendor", rfq.Number+"/"+offer.ItemCode+"/"+vendor.ID)
			}
			items = append(items, QuotationItem{
				ItemCode:      line.ItemCode,
				ItemName:      line.ItemName,
				UOM:           line.UOM,
				ProcureQty:    line.ProcureQty,
				CanProvideQty: offer.CanProvideQty,
				Rate:          offer.Rate,
			})
		}
		if rfq.Status != StatusApproved {
			return stateErr("rfq", rfq.Number, "status is %s, quotations require an approved rfq", rfq.Status)
		}
		existing, err := tx.ListQuotations(ctx, rfq.Number)
		if err != nil {
			return err
		}
		for _, q := range existing {
			if q.Vendor.ID == vendor.ID && q.Status != StatusRejected {
				return stateErr("rfq", rfq.Number, "vendor %s already has quotation %s", vendor.ID, q.Number)
			}
		}
		number, err := s.nextNumber(ctx, PrefixQuotation)
		if err != nil {
			return err
		}
		created = Quotation{
			Number:       number,
			RFQNo:        rfq.Number,
			SourceNumber: rfq.Source.Number,
			Vendor:       VendorRef{ID: vendor.ID, Name: vendor.Name},
			EntryDate:    entryDate,
			Delivery: DeliveryTerms{
				TimeOfDelivery:   input.Delivery.TimeOfDelivery,
				ResponseTimeDays: input.Delivery.ResponseTimeDays,
				PriceValidity:    input.Delivery.PriceValidity,
				DeliveryPeriod:   input.Delivery.DeliveryPeriod,
			},
			Services:   input.Services,
			Milestones: milestones,
			Items:      items,
			Comment:    input.Comment,
			Status:     StatusPending,
			CreatedBy:  input.CreatedBy,
		}
		created.OfferValue = created.offerValue()
		return tx.SaveQuotation(ctx, created)
	})
	if err != nil {
		return Quotation{}, err
	}
	s.emit(ctx, Event{Entity: EntityQuotation, Action: ActionCreated, Number: created.Number, RFQNo: created.RFQNo, Actor: created.CreatedBy,
		Meta: map[string]string{"vendor_id": created.Vendor.ID, "offer_value": created.OfferValue.String()}})
	return created, nil
}

func buildMilestones(inputs []MilestoneInput) ([]PaymentMilestone, error) {
	out := make([]PaymentMilestone, 0, len(inputs))
	percent := decimal.Zero
	for i, in := range inputs {
		if in.Amount.IsNegative() {
			return nil, validationErr("quotation", fmt.Sprintf("milestones[%d].amount", i), "must not be negative")
		}
		if in.PaymentType == PaymentPercent {
			percent = percent.Add(in.Amount)
		}
		out = append(out, PaymentMilestone{Type: in.Type, PaymentType: in.PaymentType, Amount: in.Amount, Reason: in.Reason})
	}
	if percent.GreaterThan(hundred) {
		return nil, validationErr("quotation", "milestones", "percentage milestones sum to %s%%", percent)
	}
	return out, nil
}

func checkOffer(itemCode string, canProvide, rate decimal.Decimal) error {
	if !canProvide.IsPositive() {
		return validationErr("quotation", "items."+itemCode+".can_provide_qty", "must be greater than zero")
	}
	if !rate.IsPositive() {
		return validationErr("quotation", "items."+itemCode+".rate", "must be greater than zero")
	}
	return nil
}

// UpdateQuotationItem edits an offer while the quotation is still pending.
func (s *Service) UpdateQuotationItem(ctx context.Context, quotationNo, itemCode string, canProvideQty, rate decimal.Decimal) (Quotation, error) {
	if err := checkOffer(itemCode, canProvideQty, rate); err != nil {
		return Quotation{}, err
	}
	var updated Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotation(ctx, quotationNo)
		if err != nil {
			return err
		}
		if q.Status != StatusPending {
			return stateErr("quotation", quotationNo, "status is %s, offers are locked", q.Status)
		}
		pos := -1
		for i, item := range q.Items {
			if item.ItemCode == itemCode {
				pos = i
				break
			}
		}
		if pos < 0 {
			return referenceErr("quotation item", quotationNo+"/"+itemCode)
		}
		row, err := tx.GetCSRow(ctx, q.RFQNo, itemCode)
		switch {
		case err == nil:
			if i := row.vendorIndex(q.Vendor.ID); i >= 0 && row.Vendors[i].QuotationNo == q.Number {
				return stateErr("quotation", quotationNo, "offer for %s is under comparison in cs row %s/%s", itemCode, row.RFQNo, row.ItemCode)
			}
		case !errors.Is(err, ErrReference):
			return err
		}
		q.Items[pos].CanProvideQty = canProvideQty
		q.Items[pos].Rate = rate
		q.OfferValue = q.offerValue()
		updated = q
		return tx.SaveQuotation(ctx, q)
	})
	if err != nil {
		return Quotation{}, err
	}
	s.emit(ctx, Event{Entity: EntityQuotation, Action: ActionUpdated, Number: quotationNo, RFQNo: updated.RFQNo,
		Meta: map[string]string{"item_code": itemCode}})
	return updated, nil
}

// ApproveQuotation moves a pending quotation to approved.
func (s *Service) ApproveQuotation(ctx context.Context, quotationNo, approver, comment string) (Quotation, error) {
	return s.decideQuotation(ctx, quotationNo, approver, comment, true)
}

// RejectQuotation moves a pending quotation to rejected.
func (s *Service) RejectQuotation(ctx context.Context, quotationNo, approver, comment string) (Quotation, error) {
	return s.decideQuotation(ctx, quotationNo, approver, comment, false)
}

func (s *Service) decideQuotation(ctx context.Context, quotationNo, approver, comment string, approve bool) (Quotation, error) {
	if approver == "" {
		return Quotation{}, validationErr("quotation", "approver", "required")
	}
	status, action := decisionStatus(approve)
	var updated Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotation(ctx, quotationNo)
		if err != nil {
			return err
		}
		if q.Status != StatusPending {
			return stateErr("quotation", quotationNo, "status is %s", q.Status)
		}
		q.Status = status
		q.Approval = s.decide(approver, comment)
		updated = q
		return tx.SaveQuotation(ctx, q)
	})
	if err != nil {
		return Quotation{}, err
	}
	s.emit(ctx, Event{Entity: EntityQuotation, Action: action, Number: quotationNo, RFQNo: updated.RFQNo, Actor: approver})
	return updated, nil
}

// GetQuotation returns a single quotation.
func (s *Service) GetQuotation(ctx context.Context, quotationNo string) (Quotation, error) {
	return s.repo.GetQuotation(ctx, quotationNo)
}

// ListQuotations returns the quotations submitted against rfqNo.
func (s *Service) ListQuotations(ctx context.Context, rfqNo string) ([]Quotation, error) {
	if _, err := s.repo.GetRFQ(ctx, rfqNo); err != nil {
		return nil, err
	}
	return s.repo.ListQuotations(ctx, rfqNo)
}
