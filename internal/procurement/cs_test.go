package procurement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func allocateQty(t *testing.T, env *testEnv, rfqNo, itemCode, vendorID string, qty int64) CSRow {
	t.Helper()
	row, err := env.svc.AllocateCS(context.Background(), AllocateInput{RFQNo: rfqNo, ItemCode: itemCode, VendorID: vendorID, QtyWeNeed: dec(qty)})
	require.NoError(t, err)
	return row
}

func TestOpenCSRowSnapshotsLiveQuotations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)

	row, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	require.Equal(t, RowDraft, row.Status)
	require.True(t, row.RequiredQty.Equal(dec(100)))
	require.Len(t, row.Vendors, 2)
	require.Equal(t, "V-X", row.Vendors[0].Vendor.ID)
	require.Equal(t, "VQ-001", row.Vendors[0].QuotationNo)
	require.True(t, row.Vendors[1].CanProvideQty.Equal(dec(80)))
	require.True(t, row.Vendors[1].QtyWeNeed.IsZero())
	require.Equal(t, "30% advance; 70% delivery", row.Vendors[0].PaymentTerms)

	again, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	require.Equal(t, row.Vendors, again.Vendors)
	require.Len(t, env.events.find(EntityCSRow, ActionCreated), 1)

	_, err = env.svc.OpenCSRow(ctx, rfq.Number, "CEM")
	requireKind(t, err, ErrReference)
	_, err = env.svc.OpenCSRow(ctx, "RFQ-404", "STL")
	requireKind(t, err, ErrReference)
}

func TestOpenCSRowSkipsRejectedQuotations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	indent := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100))
	rfq := env.approvedRFQ(t, indent.Number, assign("STL", "V-X", "V-Y"))
	x := env.quote(t, rfq.Number, "V-X", offer("STL", 100, 10))
	env.quote(t, rfq.Number, "V-Y", offer("STL", 80, 12))
	_, err := env.svc.RejectQuotation(ctx, x.Number, "manager", "")
	require.NoError(t, err)

	row, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	require.Len(t, row.Vendors, 1)
	require.Equal(t, "V-Y", row.Vendors[0].Vendor.ID)
}

func TestOpenCSRowWithoutOffersFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	indent := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100))
	rfq := env.approvedRFQ(t, indent.Number, assign("STL", "V-X"))

	_, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	requireKind(t, err, ErrValidation)
	_, err = env.svc.GetCSRow(ctx, rfq.Number, "STL")
	requireKind(t, err, ErrReference)
}

func TestAllocateCSRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)
	_, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)

	row := allocateQty(t, env, rfq.Number, "STL", "V-X", 60)
	require.True(t, row.Vendors[0].TotalAmount.Equal(dec(600)))

	terms := "net 30"
	row, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Y", QtyWeNeed: dec(40), Rate: decPtr(11), Remarks: "negotiated", PaymentTerms: &terms})
	require.NoError(t, err)
	require.True(t, row.Vendors[1].TotalAmount.Equal(dec(440)))
	require.Equal(t, "net 30", row.Vendors[1].PaymentTerms)
	require.Equal(t, "negotiated", row.Vendors[1].Remarks)

	_, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Y", QtyWeNeed: dec(81)})
	requireKind(t, err, ErrValidation)
	_, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Y", QtyWeNeed: dec(-1)})
	requireKind(t, err, ErrValidation)
	_, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Y", QtyWeNeed: dec(1), Rate: decPtr(0)})
	requireKind(t, err, ErrValidation)
	_, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Z", QtyWeNeed: dec(1)})
	requireKind(t, err, ErrReference)

	stored, err := env.svc.GetCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	require.True(t, stored.AllocatedQty().Equal(dec(100)))
}

func TestConfirmCSRowOverAllocationFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)
	_, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	allocateQty(t, env, rfq.Number, "STL", "V-X", 60)
	allocateQty(t, env, rfq.Number, "STL", "V-Y", 50)

	_, err = env.svc.ConfirmCSRow(ctx, rfq.Number, "STL", "buyer")
	requireKind(t, err, ErrValidation)

	row, err := env.svc.GetCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	require.Equal(t, RowDraft, row.Status)
	entries, err := env.svc.ListCSEntries(ctx, rfq.Number)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestConfirmCSRowCreatesVendorEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)
	_, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	allocateQty(t, env, rfq.Number, "STL", "V-X", 60)
	allocateQty(t, env, rfq.Number, "STL", "V-Y", 40)

	row, err := env.svc.ConfirmCSRow(ctx, rfq.Number, "STL", "buyer")
	require.NoError(t, err)
	require.Equal(t, RowConfirmed, row.Status)
	require.Equal(t, "buyer", row.ConfirmedBy)
	require.NotNil(t, row.ConfirmedAt)

	entries, err := env.svc.ListCSEntries(ctx, rfq.Number)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "V-X", entries[0].Vendor.ID)
	require.Equal(t, "111", entries[0].ContactNo)
	require.True(t, entries[0].TotalAmount.Equal(dec(600)))
	require.True(t, entries[1].TotalAmount.Equal(dec(480)))
	require.Equal(t, StatusPending, entries[1].Status)

	_, err = env.svc.ConfirmCSRow(ctx, rfq.Number, "STL", "buyer")
	requireKind(t, err, ErrInvalidState)
	_, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-X", QtyWeNeed: dec(10)})
	requireKind(t, err, ErrInvalidState)

	approved, err := env.svc.ApproveCS(ctx, rfq.Number, "V-X", "manager", "")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	rejected, err := env.svc.RejectCS(ctx, rfq.Number, "V-Y", "manager", "late delivery")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	_, err = env.svc.ApproveCS(ctx, rfq.Number, "V-Y", "manager", "")
	requireKind(t, err, ErrInvalidState)
	_, err = env.svc.RejectCS(ctx, rfq.Number, "V-X", "manager", "")
	requireKind(t, err, ErrInvalidState)
	_, err = env.svc.ApproveCS(ctx, rfq.Number, "V-Z", "manager", "")
	requireKind(t, err, ErrReference)
}

func TestConfirmRequiresAllocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)
	_, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)

	_, err = env.svc.ConfirmCSRow(ctx, rfq.Number, "STL", "buyer")
	requireKind(t, err, ErrValidation)
	_, err = env.svc.ConfirmCSRow(ctx, rfq.Number, "STL", "")
	requireKind(t, err, ErrValidation)
}

func TestVendorEntryAccumulatesAcrossItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	indent := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100), lineItem("CEM", "Cement", "bag", 10))
	rfq := env.approvedRFQ(t, indent.Number, assign("STL", "V-X"), assign("CEM", "V-X"))
	env.quote(t, rfq.Number, "V-X", offer("STL", 100, 10), offer("CEM", 10, 300))

	rows, err := env.svc.SubmitComparativeStatement(ctx, SubmitCSInput{
		RFQNo: rfq.Number,
		Actor: "buyer",
		Items: []SubmitCSItem{
			{ItemCode: "STL", Allocations: []VendorAllocation{{VendorID: "V-X", QtyWeNeed: dec(100)}}},
			{ItemCode: "CEM", Allocations: []VendorAllocation{{VendorID: "V-X", QtyWeNeed: dec(10)}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	entries, err := env.svc.ListCSEntries(ctx, rfq.Number)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Items, 2)
	require.True(t, entries[0].TotalAmount.Equal(dec(4000)))
	require.Len(t, env.events.find(EntityCSRow, ActionConfirmed), 2)
}

func TestSubmitComparativeStatementIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	indent := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100), lineItem("CEM", "Cement", "bag", 10))
	rfq := env.approvedRFQ(t, indent.Number, assign("STL", "V-X"), assign("CEM", "V-X"))
	env.quote(t, rfq.Number, "V-X", offer("STL", 100, 10), offer("CEM", 10, 300))
	before := env.events.count()

	_, err := env.svc.SubmitComparativeStatement(ctx, SubmitCSInput{
		RFQNo: rfq.Number,
		Actor: "buyer",
		Items: []SubmitCSItem{
			{ItemCode: "STL", Allocations: []VendorAllocation{{VendorID: "V-X", QtyWeNeed: dec(100)}}},
			{ItemCode: "CEM", Allocations: []VendorAllocation{{VendorID: "V-X", QtyWeNeed: dec(11)}}},
		},
	})
	requireKind(t, err, ErrValidation)

	rows, err := env.svc.ListCSRows(ctx, rfq.Number)
	require.NoError(t, err)
	require.Empty(t, rows)
	entries, err := env.svc.ListCSEntries(ctx, rfq.Number)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, before, env.events.count())
}

func TestCSRequiresApprovedRFQ(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	indent := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100))
	rfq, err := env.svc.CreateRFQ(ctx, CreateRFQInput{
		SourceNumber: indent.Number,
		EndDate:      testNow,
		CreatedBy:    "buyer",
		Items:        []RFQItemInput{assign("STL", "V-X")},
	})
	require.NoError(t, err)

	_, err = env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	requireKind(t, err, ErrInvalidState)
}

func TestRejectedQuotationCannotBeAllocated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)
	_, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	_, err = env.svc.RejectQuotation(ctx, "VQ-002", "manager", "late")
	require.NoError(t, err)

	_, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Y", QtyWeNeed: dec(40)})
	requireKind(t, err, ErrInvalidState)
	require.ErrorContains(t, err, "VQ-002")

	// clearing an allocation stays possible
	row, err := env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Y", QtyWeNeed: dec(0)})
	require.NoError(t, err)
	require.True(t, row.Vendors[1].QtyWeNeed.IsZero())
	allocateQty(t, env, rfq.Number, "STL", "V-X", 60)
}

func TestConfirmRejectsAllocationOnRejectedQuotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)
	_, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	allocateQty(t, env, rfq.Number, "STL", "V-X", 60)
	allocateQty(t, env, rfq.Number, "STL", "V-Y", 40)
	_, err = env.svc.RejectQuotation(ctx, "VQ-002", "manager", "late")
	require.NoError(t, err)

	_, err = env.svc.ConfirmCSRow(ctx, rfq.Number, "STL", "buyer")
	requireKind(t, err, ErrInvalidState)

	row, err := env.svc.GetCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	require.Equal(t, RowDraft, row.Status)
	entries, err := env.svc.ListCSEntries(ctx, rfq.Number)
	require.NoError(t, err)
	require.Empty(t, entries)

	allocateQty(t, env, rfq.Number, "STL", "V-Y", 0)
	row, err = env.svc.ConfirmCSRow(ctx, rfq.Number, "STL", "buyer")
	require.NoError(t, err)
	require.Equal(t, RowConfirmed, row.Status)
	entries, err = env.svc.ListCSEntries(ctx, rfq.Number)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "VQ-001", entries[0].QuotationNo)
}

func TestOfferUnderComparisonIsLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := env.steelRFQ(t)
	_, err := env.svc.UpdateQuotationItem(ctx, "VQ-002", "STL", dec(90), dec(12))
	require.NoError(t, err)

	row, err := env.svc.OpenCSRow(ctx, rfq.Number, "STL")
	require.NoError(t, err)
	require.True(t, row.Vendors[1].CanProvideQty.Equal(dec(90)))

	_, err = env.svc.UpdateQuotationItem(ctx, "VQ-002", "STL", dec(200), dec(12))
	requireKind(t, err, ErrInvalidState)

	_, err = env.svc.AllocateCS(ctx, AllocateInput{RFQNo: rfq.Number, ItemCode: "STL", VendorID: "V-Y", QtyWeNeed: dec(91)})
	requireKind(t, err, ErrValidation)
	q, err := env.svc.GetQuotation(ctx, "VQ-002")
	require.NoError(t, err)
	require.True(t, q.Items[0].CanProvideQty.Equal(dec(90)))
	require.True(t, q.OfferValue.Equal(dec(1080)))
}
