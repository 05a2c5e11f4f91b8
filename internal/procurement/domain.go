package procurement

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the approval lifecycle shared by indents, RFQs, quotations and CS entries.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// AggregateStatus tracks whether an approved indent was merged into an aggregation.
type AggregateStatus string

const (
	NotAggregated AggregateStatus = "not_aggregated"
	Aggregated    AggregateStatus = "aggregated"
)

// SourceKind identifies what an RFQ was raised against.
type SourceKind string

const (
	SourceIndent      SourceKind = "indent"
	SourceAggregation SourceKind = "aggregation"
)

// PaymentType describes how a milestone amount is expressed.
type PaymentType string

const (
	PaymentPercent PaymentType = "percent"
	PaymentAmount  PaymentType = "amount"
)

// RowStatus is the confirmation state of a comparative statement row.
type RowStatus string

const (
	RowDraft     RowStatus = "draft"
	RowConfirmed RowStatus = "confirmed"
)

// POStatus is the state of a derived purchase order.
type POStatus string

const (
	POStatusPending   POStatus = "pending"
	POStatusApproved  POStatus = "approved"
	POStatusInTransit POStatus = "in_transit"
	POStatusDelivered POStatus = "delivered"
	POStatusCancelled POStatus = "cancelled"
)

var poTransitions = map[POStatus][]POStatus{
	POStatusPending:   {POStatusApproved, POStatusCancelled},
	POStatusApproved:  {POStatusInTransit, POStatusCancelled},
	POStatusInTransit: {POStatusDelivered},
}

// CanMoveTo reports whether a purchase order in s may move to next.
// Delivered and cancelled orders are final.
func (s POStatus) CanMoveTo(next POStatus) bool {
	return slices.Contains(poTransitions[s], next)
}

// Document number prefixes.
const (
	PrefixIndent      = "IND"
	PrefixAggregation = "AGG"
	PrefixRFQ         = "RFQ"
	PrefixQuotation   = "VQ"
	PrefixPO          = "PO"
)

// Decision holds the approver stamp of a terminal transition.
type Decision struct {
	By      string     `json:"by,omitempty"`
	At      *time.Time `json:"at,omitempty"`
	Comment string     `json:"comment,omitempty"`
}

// VendorRef is a vendor identity copied from the directory.
type VendorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemLine is the item master shape carried across stages.
type ItemLine struct {
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name"`
	UOM      string          `json:"uom"`
	Rate     decimal.Decimal `json:"rate"`
}

// IndentItem is a requested item on an indent.
type IndentItem struct {
	ItemLine
	AvailableQty decimal.Decimal `json:"available_qty"`
	RequiredQty  decimal.Decimal `json:"required_qty"`
}

// Indent is an internal purchase request.
type Indent struct {
	Number          string          `json:"indent_number"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	WarehouseID     string          `json:"warehouse_id"`
	WarehouseName   string          `json:"warehouse_name"`
	ExpectedDate    time.Time       `json:"expected_date"`
	Comment         string          `json:"comment,omitempty"`
	BOMID           string          `json:"bom_id,omitempty"`
	Project         string          `json:"project,omitempty"`
	Items           []IndentItem    `json:"items"`
	Status          Status          `json:"status"`
	AggregateStatus AggregateStatus `json:"aggregate_status"`
	AggregationNo   string          `json:"aggregation_no,omitempty"`
	Approval        Decision        `json:"approval"`
}

// Item returns the indent line for code.
func (i Indent) Item(code string) (IndentItem, bool) {
	for _, item := range i.Items {
		if item.ItemCode == code {
			return item, true
		}
	}
	return IndentItem{}, false
}

// AggregatedItem is one merged row of an aggregation.
type AggregatedItem struct {
	ItemCode         string          `json:"item_code"`
	ItemName         string          `json:"item_name"`
	UOM              string          `json:"uom"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
	IndentNumbers    []string        `json:"indent_numbers"`
}

// Aggregation merges several approved indents into one procurement list.
type Aggregation struct {
	Number        string           `json:"aggregation_no"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpectedDate  *time.Time       `json:"expected_date,omitempty"`
	WarehouseID   string           `json:"warehouse_id"`
	WarehouseName string           `json:"warehouse_name"`
	IndentNumbers []string         `json:"indent_numbers"`
	Items         []AggregatedItem `json:"items"`
}

// SourceRef points an RFQ at an indent or an aggregation.
type SourceRef struct {
	Kind   SourceKind `json:"kind"`
	Number string     `json:"number"`
}

// RFQItem is an item put out for quotation.
type RFQItem struct {
	ItemCode    string          `json:"item_code"`
	ItemName    string          `json:"item_name"`
	UOM         string          `json:"uom"`
	RequiredQty decimal.Decimal `json:"required_qty"`
	ProcureQty  decimal.Decimal `json:"procure_qty"`
	Vendors     []VendorRef     `json:"vendors"`
}

// HasVendor reports whether vendorID is a candidate for the item.
func (i RFQItem) HasVendor(vendorID string) bool {
	for _, v := range i.Vendors {
		if v.ID == vendorID {
			return true
		}
	}
	return false
}

// RFQ is a request for quotation.
type RFQ struct {
	Number           string    `json:"rfq_no"`
	Source           SourceRef `json:"source"`
	WarehouseID      string    `json:"warehouse_id"`
	DeliveryLocation string    `json:"delivery_location"`
	RFQDate          time.Time `json:"rfq_date"`
	EndDate          time.Time `json:"end_date"`
	Description      string    `json:"description,omitempty"`
	Items            []RFQItem `json:"items"`
	Status           Status    `json:"status"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	Approval         Decision  `json:"approval"`
}

// Item returns the RFQ line for code.
func (r RFQ) Item(code string) (RFQItem, bool) {
	for _, item := range r.Items {
		if item.ItemCode == code {
			return item, true
		}
	}
	return RFQItem{}, false
}

// DeliveryTerms are the timing fields of a vendor quotation.
type DeliveryTerms struct {
	TimeOfDelivery   string    `json:"time_of_delivery"`
	ResponseTimeDays int       `json:"response_time_days"`
	PriceValidity    time.Time `json:"price_validity"`
	DeliveryPeriod   string    `json:"delivery_period"`
}

// ServiceFlags lists the services included in a quoted price.
type ServiceFlags struct {
	Packaging bool `json:"packaging"`
	Freight   bool `json:"freight"`
	Loading   bool `json:"loading"`
	Unloading bool `json:"unloading"`
	Warranty  bool `json:"warranty"`
}

// PaymentMilestone is one step of a vendor's payment schedule.
type PaymentMilestone struct {
	Type        string          `json:"type"`
	PaymentType PaymentType     `json:"payment_type"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason,omitempty"`
}

// QuotationItem is a vendor's offer for one RFQ item.
type QuotationItem struct {
	ItemCode      string          `json:"item_code"`
	ItemName      string          `json:"item_name"`
	UOM           string          `json:"uom"`
	ProcureQty    decimal.Decimal `json:"procure_qty"`
	CanProvideQty decimal.Decimal `json:"can_provide_qty"`
	Rate          decimal.Decimal `json:"rate"`
}

// Quotation is a vendor's response to an RFQ.
type Quotation struct {
	Number       string             `json:"quotation_no"`
	RFQNo        string             `json:"rfq_no"`
	SourceNumber string             `json:"source_number"`
	Vendor       VendorRef          `json:"vendor"`
	EntryDate    time.Time          `json:"entry_date"`
	Delivery     DeliveryTerms      `json:"delivery"`
	Services     ServiceFlags       `json:"services"`
	Milestones   []PaymentMilestone `json:"milestones"`
	Items        []QuotationItem    `json:"items"`
	OfferValue   decimal.Decimal    `json:"offer_value"`
	Comment      string             `json:"comment,omitempty"`
	Status       Status             `json:"status"`
	CreatedBy    string             `json:"created_by"`
	Approval     Decision           `json:"approval"`
}

// offerValue is the undiscounted value of everything the vendor offered.
func (q Quotation) offerValue() decimal.Decimal {
	total := decimal.Zero
	for _, item := range q.Items {
		total = total.Add(item.CanProvideQty.Mul(item.Rate))
	}
	return total
}

// Item returns the offer for code.
func (q Quotation) Item(code string) (QuotationItem, bool) {
	for _, item := range q.Items {
		if item.ItemCode == code {
			return item, true
		}
	}
	return QuotationItem{}, false
}

// CSVendorLine is one vendor's column in a comparative statement row.
type CSVendorLine struct {
	Vendor        VendorRef       `json:"vendor"`
	QuotationNo   string          `json:"quotation_no"`
	CanProvideQty decimal.Decimal `json:"can_provide_qty"`
	Rate          decimal.Decimal `json:"rate"`
	QtyWeNeed     decimal.Decimal `json:"qty_we_need"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Remarks       string          `json:"remarks,omitempty"`
	PaymentTerms  string          `json:"payment_terms,omitempty"`
}

// CSRow compares vendor offers for one RFQ item.
type CSRow struct {
	RFQNo       string          `json:"rfq_no"`
	ItemCode    string          `json:"item_code"`
	ItemName    string          `json:"item_name"`
	UOM         string          `json:"uom"`
	RequiredQty decimal.Decimal `json:"required_qty"`
	Vendors     []CSVendorLine  `json:"vendors"`
	Status      RowStatus       `json:"status"`
	ConfirmedBy string          `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// AllocatedQty sums qtyWeNeed across the row's vendors.
func (r CSRow) AllocatedQty() decimal.Decimal {
	total := decimal.Zero
	for _, v := range r.Vendors {
		total = total.Add(v.QtyWeNeed)
	}
	return total
}

func (r CSRow) vendorIndex(vendorID string) int {
	for i, v := range r.Vendors {
		if v.Vendor.ID == vendorID {
			return i
		}
	}
	return -1
}

// CSEntryItem is an item awarded to a vendor in its CS entry.
type CSEntryItem struct {
	ItemCode      string          `json:"item_code"`
	ItemName      string          `json:"item_name"`
	UOM           string          `json:"uom"`
	RequiredQty   decimal.Decimal `json:"required_qty"`
	CanProvideQty decimal.Decimal `json:"can_provide_qty"`
	Rate          decimal.Decimal `json:"rate"`
	QtySelected   decimal.Decimal `json:"qty_selected"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// CSEntry is the per-vendor summary of a comparative statement.
type CSEntry struct {
	RFQNo        string          `json:"rfq_no"`
	Vendor       VendorRef       `json:"vendor"`
	ContactNo    string          `json:"contact_no,omitempty"`
	QuotationNo  string          `json:"quotation_no"`
	PaymentTerms string          `json:"payment_terms,omitempty"`
	Items        []CSEntryItem   `json:"items"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       Status          `json:"status"`
	Approval     Decision        `json:"approval"`
	PONumber     string          `json:"po_number,omitempty"`
}

func (e *CSEntry) recompute() {
	total := decimal.Zero
	for _, item := range e.Items {
		total = total.Add(item.TotalAmount)
	}
	e.TotalAmount = total
}

// POLine is one line of a purchase order.
type POLine struct {
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name"`
	UOM      string          `json:"uom"`
	Qty      decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// PurchaseOrder is derived from an approved CS entry.
type PurchaseOrder struct {
	Number           string          `json:"po_number"`
	RFQNo            string          `json:"rfq_no"`
	Vendor           VendorRef       `json:"vendor"`
	WarehouseID      string          `json:"warehouse_id"`
	DeliveryLocation string          `json:"delivery_location"`
	Lines            []POLine        `json:"lines"`
	Total            decimal.Decimal `json:"total"`
	PaymentTerms     string          `json:"payment_terms,omitempty"`
	Status           POStatus        `json:"status"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedBy        string          `json:"updated_by,omitempty"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }
