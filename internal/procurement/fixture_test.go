package procurement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
	"github.com/odyssey-erp/odyssey-procure/internal/idgen"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(ctx context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) find(entity, action string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, evt := range r.events {
		if evt.Entity == entity && evt.Action == action {
			out = append(out, evt)
		}
	}
	return out
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type testEnv struct {
	svc    *Service
	store  *MemoryStore
	clock  *fixedClock
	events *eventRecorder
	audit  *auditRecorder
}

func testCatalog() *catalog.Memory {
	return catalog.NewMemory(catalog.Snapshot{
		Warehouses: []catalog.Warehouse{
			{ID: "WH-1", Name: "Central Store", Location: "Plot 4, Pune"},
			{ID: "WH-2", Name: "Site Store"},
		},
		BOMs: []catalog.BOM{{
			ID:      "BOM-1",
			Project: "Tower A",
			Items: []catalog.BOMItem{
				{ItemCode: "STL", ItemName: "Steel Rod", UOM: "kg", Rate: decimal.NewFromInt(70), AvailableQty: decimal.NewFromInt(5)},
				{ItemCode: "CEM", ItemName: "Cement", UOM: "bag", Rate: decimal.NewFromInt(350)},
			},
		}},
		Vendors: []catalog.Vendor{
			{ID: "V-X", Name: "Xeno Steel", ContactNo: "111"},
			{ID: "V-Y", Name: "Yard Metals", ContactNo: "222"},
			{ID: "V-Z", Name: "Zen Supply", ContactNo: "333"},
		},
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  NewMemoryStore(),
		clock:  &fixedClock{now: testNow},
		events: &eventRecorder{},
		audit:  &auditRecorder{},
	}
	env.svc = NewService(ServiceDeps{
		Repo:    env.store,
		Catalog: testCatalog(),
		Numbers: idgen.NewSequence(3),
		Clock:   env.clock,
		Audit:   env.audit,
		Events:  env.events,
	})
	return env
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func lineItem(code, name, uom string, qty int64) IndentItemInput {
	return IndentItemInput{ItemCode: code, ItemName: name, UOM: uom, Rate: dec(10), RequiredQty: dec(qty)}
}

func (e *testEnv) createIndent(t *testing.T, warehouseID string, items ...IndentItemInput) Indent {
	t.Helper()
	indent, err := e.svc.CreateIndent(context.Background(), CreateIndentInput{
		CreatedBy:    "planner",
		WarehouseID:  warehouseID,
		ExpectedDate: testNow.AddDate(0, 0, 14),
		Items:        items,
	})
	require.NoError(t, err)
	return indent
}

func (e *testEnv) approvedIndent(t *testing.T, items ...IndentItemInput) Indent {
	t.Helper()
	indent := e.createIndent(t, "WH-1", items...)
	approved, err := e.svc.ApproveIndent(context.Background(), indent.Number, "manager", "")
	require.NoError(t, err)
	return approved
}

func assign(code string, vendors ...string) RFQItemInput {
	return RFQItemInput{ItemCode: code, VendorIDs: vendors}
}

func (e *testEnv) approvedRFQ(t *testing.T, source string, items ...RFQItemInput) RFQ {
	t.Helper()
	ctx := context.Background()
	rfq, err := e.svc.CreateRFQ(ctx, CreateRFQInput{
		SourceNumber: source,
		EndDate:      testNow.AddDate(0, 0, 7),
		CreatedBy:    "buyer",
		Items:        items,
	})
	require.NoError(t, err)
	approved, err := e.svc.ApproveRFQ(ctx, rfq.Number, "manager", "")
	require.NoError(t, err)
	return approved
}

func offer(code string, canProvide, rate int64) ItemOfferInput {
	return ItemOfferInput{ItemCode: code, CanProvideQty: dec(canProvide), Rate: dec(rate)}
}

func quotationInput(rfqNo, vendorID string, offers ...ItemOfferInput) SubmitQuotationInput {
	return SubmitQuotationInput{
		RFQNo:    rfqNo,
		VendorID: vendorID,
		Delivery: DeliveryTermsInput{
			TimeOfDelivery: "2 weeks",
			PriceValidity:  testNow.AddDate(0, 1, 0),
			DeliveryPeriod: "March",
		},
		Milestones: []MilestoneInput{
			{Type: "advance", PaymentType: PaymentPercent, Amount: dec(30)},
			{Type: "delivery", PaymentType: PaymentPercent, Amount: dec(70)},
		},
		Items:     offers,
		CreatedBy: "buyer",
	}
}

func (e *testEnv) quote(t *testing.T, rfqNo, vendorID string, offers ...ItemOfferInput) Quotation {
	t.Helper()
	q, err := e.svc.SubmitQuotation(context.Background(), quotationInput(rfqNo, vendorID, offers...))
	require.NoError(t, err)
	return q
}

// steelRFQ sets up an approved RFQ for 100 kg of steel with offers from X
// (100 at 10) and Y (80 at 12).
func (e *testEnv) steelRFQ(t *testing.T) RFQ {
	t.Helper()
	indent := e.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100))
	rfq := e.approvedRFQ(t, indent.Number, assign("STL", "V-X", "V-Y"))
	e.quote(t, rfq.Number, "V-X", offer("STL", 100, 10))
	e.quote(t, rfq.Number, "V-Y", offer("STL", 80, 12))
	return rfq
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	var perr *Error
	require.ErrorAs(t, err, &perr)
}
