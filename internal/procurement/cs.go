package procurement

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
)

// AllocateInput sets the quantity taken from one vendor on a CS row.
type AllocateInput struct {
	RFQNo        string           `json:"rfq_no" validate:"required"`
	ItemCode     string           `json:"item_code" validate:"required"`
	VendorID     string           `json:"vendor_id" validate:"required"`
	QtyWeNeed    decimal.Decimal  `json:"qty_we_need"`
	Rate         *decimal.Decimal `json:"rate,omitempty"`
	Remarks      string           `json:"remarks"`
	PaymentTerms *string          `json:"payment_terms,omitempty"`
}

// SubmitCSInput opens, allocates and confirms several rows of one RFQ at once.
type SubmitCSInput struct {
	RFQNo string         `json:"rfq_no" validate:"required"`
	Actor string         `json:"actor" validate:"required"`
	Items []SubmitCSItem `json:"items" validate:"required,min=1,dive"`
}

// SubmitCSItem lists the allocations for one item.
type SubmitCSItem struct {
	ItemCode    string             `json:"item_code" validate:"required"`
	Allocations []VendorAllocation `json:"allocations" validate:"required,min=1,dive"`
}

// VendorAllocation is an allocation inside SubmitCSInput.
type VendorAllocation struct {
	VendorID     string           `json:"vendor_id" validate:"required"`
	QtyWeNeed    decimal.Decimal  `json:"qty_we_need"`
	Rate         *decimal.Decimal `json:"rate,omitempty"`
	Remarks      string           `json:"remarks"`
	PaymentTerms *string          `json:"payment_terms,omitempty"`
}

// OpenCSRow builds the comparison row for an item from every live quotation on
// the RFQ that offers it. An existing row is returned as stored.
func (s *Service) OpenCSRow(ctx context.Context, rfqNo, itemCode string) (CSRow, error) {
	var (
		row     CSRow
		created bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		row, created, err = s.openRow(ctx, tx, rfqNo, itemCode)
		return err
	})
	if err != nil {
		return CSRow{}, err
	}
	if created {
		s.emit(ctx, Event{Entity: EntityCSRow, Action: ActionCreated, Number: rfqNo + "/" + itemCode, RFQNo: rfqNo,
			Meta: map[string]string{"item_code": itemCode, "vendors": joinVendorIDs(row.Vendors)}})
	}
	return row, nil
}

func (s *Service) openRow(ctx context.Context, tx TxRepository, rfqNo, itemCode string) (CSRow, bool, error) {
	rfq, err := tx.GetRFQ(ctx, rfqNo)
	if err != nil {
		return CSRow{}, false, err
	}
	if rfq.Status != StatusApproved {
		return CSRow{}, false, stateErr("rfq", rfqNo, "status is %s, comparative statements require an approved rfq", rfq.Status)
	}
	item, ok := rfq.Item(itemCode)
	if !ok {
		return CSRow{}, false, referenceErr("rfq item", rfqNo+"/"+itemCode)
	}
	existing, err := tx.GetCSRow(ctx, rfqNo, itemCode)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrReference) {
		return CSRow{}, false, err
	}
	quotations, err := tx.ListQuotations(ctx, rfqNo)
	if err != nil {
		return CSRow{}, false, err
	}
	row := CSRow{
		RFQNo:       rfqNo,
		ItemCode:    item.ItemCode,
		ItemName:    item.ItemName,
		UOM:         item.UOM,
		RequiredQty: item.RequiredQty,
		Status:      RowDraft,
	}
	for _, q := range quotations {
		if q.Status == StatusRejected {
			continue
		}
		offer, ok := q.Item(itemCode)
		if !ok {
			continue
		}
		row.Vendors = append(row.Vendors, CSVendorLine{
			Vendor:        q.Vendor,
			QuotationNo:   q.Number,
			CanProvideQty: offer.CanProvideQty,
			Rate:          offer.Rate,
			QtyWeNeed:     decimal.Zero,
			TotalAmount:   decimal.Zero,
			PaymentTerms:  summarizeMilestones(q.Milestones),
		})
	}
	if len(row.Vendors) == 0 {
		return CSRow{}, false, validationErr("cs row", "item_code", "no quotation on %s offers %s", rfqNo, itemCode)
	}
	if err := tx.SaveCSRow(ctx, row); err != nil {
		return CSRow{}, false, err
	}
	return row, true, nil
}

// AllocateCS sets qtyWeNeed, and optionally rate, remarks and payment terms, for
// one vendor on a draft row. The line total is recomputed immediately.
func (s *Service) AllocateCS(ctx context.Context, input AllocateInput) (CSRow, error) {
	if err := checkInput("cs row", input); err != nil {
		return CSRow{}, err
	}
	alloc := VendorAllocation{
		VendorID:     input.VendorID,
		QtyWeNeed:    input.QtyWeNeed,
		Rate:         input.Rate,
		Remarks:      input.Remarks,
		PaymentTerms: input.PaymentTerms,
	}
	var updated CSRow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		row, err := tx.GetCSRow(ctx, input.RFQNo, input.ItemCode)
		if err != nil {
			return err
		}
		if err := allocate(ctx, tx, &row, alloc); err != nil {
			return err
		}
		updated = row
		return tx.SaveCSRow(ctx, row)
	})
	if err != nil {
		return CSRow{}, err
	}
	s.emit(ctx, Event{Entity: EntityCSRow, Action: ActionUpdated, Number: input.RFQNo + "/" + input.ItemCode, RFQNo: input.RFQNo,
		Meta: map[string]string{"vendor_id": input.VendorID, "qty_we_need": input.QtyWeNeed.String()}})
	return updated, nil
}

func allocate(ctx context.Context, tx Reader, row *CSRow, alloc VendorAllocation) error {
	id := row.RFQNo + "/" + row.ItemCode
	if row.Status != RowDraft {
		return stateErr("cs row", id, "row is %s", row.Status)
	}
	pos := row.vendorIndex(alloc.VendorID)
	if pos < 0 {
		return referenceErr("cs vendor", id+"/"+alloc.VendorID)
	}
	line := &row.Vendors[pos]
	if alloc.QtyWeNeed.IsNegative() {
		return validationErr("cs row", "qty_we_need", "must not be negative")
	}
	if alloc.QtyWeNeed.IsPositive() {
		if err := syncOffer(ctx, tx, row, pos); err != nil {
			return err
		}
	}
	if alloc.QtyWeNeed.GreaterThan(line.CanProvideQty) {
		return validationErr("cs row", "qty_we_need", "%s exceeds what vendor %s can provide (%s)", alloc.QtyWeNeed, alloc.VendorID, line.CanProvideQty)
	}
	if alloc.Rate != nil {
		if !alloc.Rate.IsPositive() {
			return validationErr("cs row", "rate", "must be greater than zero")
		}
		line.Rate = *alloc.Rate
	}
	line.QtyWeNeed = alloc.QtyWeNeed
	line.Remarks = alloc.Remarks
	if alloc.PaymentTerms != nil {
		line.PaymentTerms = *alloc.PaymentTerms
	}
	line.TotalAmount = line.Rate.Mul(line.QtyWeNeed)
	return nil
}

// syncOffer refreshes a vendor line from the quotation it was opened with. A
// quotation rejected after the row opened can no longer be awarded.
func syncOffer(ctx context.Context, tx Reader, row *CSRow, pos int) error {
	line := &row.Vendors[pos]
	id := row.RFQNo + "/" + row.ItemCode
	q, err := tx.GetQuotation(ctx, line.QuotationNo)
	if err != nil {
		return err
	}
	if q.Status == StatusRejected {
		return stateErr("cs row", id, "quotation %s from %s is rejected", q.Number, line.Vendor.ID)
	}
	item, ok := q.Item(row.ItemCode)
	if !ok {
		return stateErr("cs row", id, "quotation %s no longer offers %s", q.Number, row.ItemCode)
	}
	line.CanProvideQty = item.CanProvideQty
	return nil
}

// ConfirmCSRow checks that the allocations fit within the required quantity and
// merges each allocated vendor's line into its CS entry for the RFQ.
func (s *Service) ConfirmCSRow(ctx context.Context, rfqNo, itemCode, actor string) (CSRow, error) {
	if actor == "" {
		return CSRow{}, validationErr("cs row", "actor", "required")
	}
	row, err := s.repo.GetCSRow(ctx, rfqNo, itemCode)
	if err != nil {
		return CSRow{}, err
	}
	contacts := s.vendorContacts(ctx, vendorIDs(row.Vendors))
	var confirmed CSRow
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		row, err := tx.GetCSRow(ctx, rfqNo, itemCode)
		if err != nil {
			return err
		}
		if err := s.confirmRow(ctx, tx, &row, actor, contacts); err != nil {
			return err
		}
		confirmed = row
		return nil
	})
	if err != nil {
		return CSRow{}, err
	}
	s.emitConfirmed(ctx, confirmed, actor)
	return confirmed, nil
}

func (s *Service) confirmRow(ctx context.Context, tx TxRepository, row *CSRow, actor string, contacts map[string]string) error {
	id := row.RFQNo + "/" + row.ItemCode
	if row.Status == RowConfirmed {
		return stateErr("cs row", id, "already confirmed")
	}
	allocated := row.AllocatedQty()
	if !allocated.IsPositive() {
		return validationErr("cs row", "qty_we_need", "nothing allocated for %s", id)
	}
	if allocated.GreaterThan(row.RequiredQty) {
		return validationErr("cs row", "qty_we_need", "allocated %s exceeds required %s for %s", allocated, row.RequiredQty, id)
	}
	for pos := range row.Vendors {
		if !row.Vendors[pos].QtyWeNeed.IsPositive() {
			continue
		}
		if err := syncOffer(ctx, tx, row, pos); err != nil {
			return err
		}
		line := row.Vendors[pos]
		if line.QtyWeNeed.GreaterThan(line.CanProvideQty) {
			return validationErr("cs row", "qty_we_need", "%s exceeds what vendor %s can provide (%s)", line.QtyWeNeed, line.Vendor.ID, line.CanProvideQty)
		}
		entry, err := tx.GetCSEntry(ctx, row.RFQNo, line.Vendor.ID)
		switch {
		case err == nil:
			if entry.Status != StatusPending {
				return stateErr("cs entry", row.RFQNo+"/"+line.Vendor.ID, "status is %s", entry.Status)
			}
		case errors.Is(err, ErrReference):
			entry = CSEntry{
				RFQNo:        row.RFQNo,
				Vendor:       line.Vendor,
				ContactNo:    contacts[line.Vendor.ID],
				QuotationNo:  line.QuotationNo,
				PaymentTerms: line.PaymentTerms,
				Status:       StatusPending,
			}
		default:
			return err
		}
		entry.Items = append(entry.Items, CSEntryItem{
			ItemCode:      row.ItemCode,
			ItemName:      row.ItemName,
			UOM:           row.UOM,
			RequiredQty:   row.RequiredQty,
			CanProvideQty: line.CanProvideQty,
			Rate:          line.Rate,
			QtySelected:   line.QtyWeNeed,
			TotalAmount:   line.TotalAmount,
		})
		entry.recompute()
		if err := tx.SaveCSEntry(ctx, entry); err != nil {
			return err
		}
	}
	now := s.clock.Now()
	row.Status = RowConfirmed
	row.ConfirmedBy = actor
	row.ConfirmedAt = &now
	return tx.SaveCSRow(ctx, *row)
}

func (s *Service) emitConfirmed(ctx context.Context, row CSRow, actor string) {
	var awarded []CSVendorLine
	for _, line := range row.Vendors {
		if line.QtyWeNeed.IsPositive() {
			awarded = append(awarded, line)
		}
	}
	s.emit(ctx, Event{Entity: EntityCSRow, Action: ActionConfirmed, Number: row.RFQNo + "/" + row.ItemCode, RFQNo: row.RFQNo, Actor: actor,
		Meta: map[string]string{"allocated": row.AllocatedQty().String(), "required": row.RequiredQty.String(), "vendors": joinVendorIDs(awarded)}})
}

// SubmitComparativeStatement applies a whole CS form in one transaction: every
// listed row is opened if needed, allocated and confirmed, or nothing changes.
func (s *Service) SubmitComparativeStatement(ctx context.Context, input SubmitCSInput) ([]CSRow, error) {
	if err := checkInput("comparative statement", input); err != nil {
		return nil, err
	}
	var ids []string
	seen := make(map[string]struct{}, len(input.Items))
	for _, item := range input.Items {
		if _, dup := seen[item.ItemCode]; dup {
			return nil, validationErr("comparative statement", "items", "item %s listed twice", item.ItemCode)
		}
		seen[item.ItemCode] = struct{}{}
		for _, alloc := range item.Allocations {
			ids = append(ids, alloc.VendorID)
		}
	}
	contacts := s.vendorContacts(ctx, uniqueStrings(ids))
	var rows []CSRow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, item := range input.Items {
			row, _, err := s.openRow(ctx, tx, input.RFQNo, item.ItemCode)
			if err != nil {
				return err
			}
			for _, alloc := range item.Allocations {
				if err := allocate(ctx, tx, &row, alloc); err != nil {
					return err
				}
			}
			if err := s.confirmRow(ctx, tx, &row, input.Actor, contacts); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.emitConfirmed(ctx, row, input.Actor)
	}
	return rows, nil
}

// ApproveCS approves one vendor's CS entry. Sibling entries are unaffected.
func (s *Service) ApproveCS(ctx context.Context, rfqNo, vendorID, approver, comment string) (CSEntry, error) {
	return s.decideCS(ctx, rfqNo, vendorID, approver, comment, true)
}

// RejectCS rejects one vendor's CS entry. Quantities allocated to it are not
// released to other vendors.
func (s *Service) RejectCS(ctx context.Context, rfqNo, vendorID, approver, comment string) (CSEntry, error) {
	return s.decideCS(ctx, rfqNo, vendorID, approver, comment, false)
}

func (s *Service) decideCS(ctx context.Context, rfqNo, vendorID, approver, comment string, approve bool) (CSEntry, error) {
	if approver == "" {
		return CSEntry{}, validationErr("cs entry", "approver", "required")
	}
	status, action := decisionStatus(approve)
	var updated CSEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetCSEntry(ctx, rfqNo, vendorID)
		if err != nil {
			return err
		}
		if entry.Status != StatusPending {
			return stateErr("cs entry", rfqNo+"/"+vendorID, "status is %s", entry.Status)
		}
		entry.Status = status
		entry.Approval = s.decide(approver, comment)
		updated = entry
		return tx.SaveCSEntry(ctx, entry)
	})
	if err != nil {
		return CSEntry{}, err
	}
	s.emit(ctx, Event{Entity: EntityCSEntry, Action: action, Number: rfqNo + "/" + vendorID, RFQNo: rfqNo, Actor: approver,
		Meta: map[string]string{"vendor_id": vendorID, "total_amount": updated.TotalAmount.String()}})
	return updated, nil
}

// GetCSRow returns a single comparison row.
func (s *Service) GetCSRow(ctx context.Context, rfqNo, itemCode string) (CSRow, error) {
	return s.repo.GetCSRow(ctx, rfqNo, itemCode)
}

// ListCSRows returns the comparison rows opened for rfqNo.
func (s *Service) ListCSRows(ctx context.Context, rfqNo string) ([]CSRow, error) {
	if _, err := s.repo.GetRFQ(ctx, rfqNo); err != nil {
		return nil, err
	}
	return s.repo.ListCSRows(ctx, rfqNo)
}

// ListCSEntries returns the per-vendor CS entries for rfqNo.
func (s *Service) ListCSEntries(ctx context.Context, rfqNo string) ([]CSEntry, error) {
	if _, err := s.repo.GetRFQ(ctx, rfqNo); err != nil {
		return nil, err
	}
	return s.repo.ListCSEntries(ctx, rfqNo)
}

// vendorContacts looks up contact numbers. Lookup failures leave them blank.
func (s *Service) vendorContacts(ctx context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out
	}
	vendors, err := s.catalog.GetVendors(ctx, catalog.VendorFilter{IDs: ids})
	if err != nil {
		s.logger.Warn("cs vendor contacts", slog.Any("error", err))
		return out
	}
	for _, v := range vendors {
		out[v.ID] = v.ContactNo
	}
	return out
}

func summarizeMilestones(milestones []PaymentMilestone) string {
	parts := make([]string, 0, len(milestones))
	for _, m := range milestones {
		var b strings.Builder
		b.WriteString(m.Amount.String())
		if m.PaymentType == PaymentPercent {
			b.WriteString("%")
		}
		b.WriteString(" ")
		b.WriteString(m.Type)
		if m.Reason != "" {
			b.WriteString(" (")
			b.WriteString(m.Reason)
			b.WriteString(")")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "; ")
}

func vendorIDs(lines []CSVendorLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Vendor.ID)
	}
	return out
}

func joinVendorIDs(lines []CSVendorLine) string {
	return strings.Join(vendorIDs(lines), ",")
}
