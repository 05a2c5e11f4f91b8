package procurement

import "time"

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (d Decision) clone() Decision {
	d.At = cloneTime(d.At)
	return d
}

func (i Indent) clone() Indent {
	i.Items = append([]IndentItem(nil), i.Items...)
	i.Approval = i.Approval.clone()
	return i
}

func (a Aggregation) clone() Aggregation {
	a.ExpectedDate = cloneTime(a.ExpectedDate)
	a.IndentNumbers = append([]string(nil), a.IndentNumbers...)
	items := make([]AggregatedItem, len(a.Items))
	for i, item := range a.Items {
		item.IndentNumbers = append([]string(nil), item.IndentNumbers...)
		items[i] = item
	}
	a.Items = items
	return a
}

func (r RFQ) clone() RFQ {
	items := make([]RFQItem, len(r.Items))
	for i, item := range r.Items {
		item.Vendors = append([]VendorRef(nil), item.Vendors...)
		items[i] = item
	}
	r.Items = items
	r.Approval = r.Approval.clone()
	return r
}

func (q Quotation) clone() Quotation {
	q.Milestones = append([]PaymentMilestone(nil), q.Milestones...)
	q.Items = append([]QuotationItem(nil), q.Items...)
	q.Approval = q.Approval.clone()
	return q
}

func (r CSRow) clone() CSRow {
	r.Vendors = append([]CSVendorLine(nil), r.Vendors...)
	r.ConfirmedAt = cloneTime(r.ConfirmedAt)
	return r
}

func (e CSEntry) clone() CSEntry {
	e.Items = append([]CSEntryItem(nil), e.Items...)
	e.Approval = e.Approval.clone()
	return e
}

func (p PurchaseOrder) clone() PurchaseOrder {
	p.Lines = append([]POLine(nil), p.Lines...)
	p.UpdatedAt = cloneTime(p.UpdatedAt)
	return p
}
