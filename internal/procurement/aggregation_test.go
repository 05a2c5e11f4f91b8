package procurement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateSumsRequiredQuantities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100), lineItem("CEM", "Cement", "bag", 20))
	second := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 50))
	require.Equal(t, "IND-001", first.Number)
	require.Equal(t, "IND-002", second.Number)

	agg, err := env.svc.Aggregate(ctx, AggregateInput{IndentNumbers: []string{first.Number, second.Number}, CreatedBy: "buyer"})
	require.NoError(t, err)
	require.Equal(t, "AGG-001", agg.Number)
	require.Equal(t, "WH-1", agg.WarehouseID)
	require.Len(t, agg.Items, 2)

	steel := agg.Items[0]
	require.Equal(t, "STL", steel.ItemCode)
	require.True(t, steel.RequiredQuantity.Equal(dec(150)))
	require.Equal(t, []string{"IND-001", "IND-002"}, steel.IndentNumbers)

	cement := agg.Items[1]
	require.True(t, cement.RequiredQuantity.Equal(dec(20)))
	require.Equal(t, []string{"IND-001"}, cement.IndentNumbers)

	for _, no := range agg.IndentNumbers {
		indent, err := env.svc.GetIndent(ctx, no)
		require.NoError(t, err)
		require.Equal(t, Aggregated, indent.AggregateStatus)
		require.Equal(t, agg.Number, indent.AggregationNo)
	}
	require.Len(t, env.events.find(EntityAggregation, ActionCreated), 1)
}

func TestAggregateRejectsInvalidSelections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approved := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 10))
	pending := env.createIndent(t, "WH-1", lineItem("STL", "Steel Rod", "kg", 5))
	tonnes := env.approvedIndent(t, lineItem("STL", "Steel Rod", "t", 1))

	cases := []struct {
		name    string
		numbers []string
		kind    error
	}{
		{"single indent", []string{approved.Number}, ErrValidation},
		{"no indents", nil, ErrValidation},
		{"duplicate indent", []string{approved.Number, approved.Number}, ErrValidation},
		{"pending indent", []string{approved.Number, pending.Number}, ErrValidation},
		{"unit mismatch", []string{approved.Number, tonnes.Number}, ErrValidation},
		{"unknown indent", []string{approved.Number, "IND-404"}, ErrReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Aggregate(ctx, AggregateInput{IndentNumbers: tc.numbers, CreatedBy: "buyer"})
			requireKind(t, err, tc.kind)
		})
	}

	indent, err := env.svc.GetIndent(ctx, approved.Number)
	require.NoError(t, err)
	require.Equal(t, NotAggregated, indent.AggregateStatus)
	aggs, err := env.svc.ListAggregations(ctx)
	require.NoError(t, err)
	require.Empty(t, aggs)
}

func TestAggregateTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 10))
	b := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 20))
	c := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 30))

	input := AggregateInput{IndentNumbers: []string{a.Number, b.Number}, CreatedBy: "buyer"}
	_, err := env.svc.Aggregate(ctx, input)
	require.NoError(t, err)

	_, err = env.svc.Aggregate(ctx, input)
	requireKind(t, err, ErrValidation)

	_, err = env.svc.Aggregate(ctx, AggregateInput{IndentNumbers: []string{c.Number, b.Number}, CreatedBy: "buyer"})
	requireKind(t, err, ErrValidation)

	// c stays free because the failed attempt rolled back
	indent, err := env.svc.GetIndent(ctx, c.Number)
	require.NoError(t, err)
	require.Equal(t, NotAggregated, indent.AggregateStatus)

	aggs, err := env.svc.ListAggregations(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
}

func TestAggregatedIndentCannotSourceRFQ(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 10))
	b := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 20))
	agg, err := env.svc.Aggregate(ctx, AggregateInput{IndentNumbers: []string{a.Number, b.Number}, CreatedBy: "buyer"})
	require.NoError(t, err)

	_, err = env.svc.CreateRFQ(ctx, CreateRFQInput{
		SourceNumber: a.Number,
		EndDate:      testNow.AddDate(0, 0, 7),
		CreatedBy:    "buyer",
		Items:        []RFQItemInput{assign("STL", "V-X")},
	})
	requireKind(t, err, ErrInvalidState)

	rfq := env.approvedRFQ(t, agg.Number, assign("STL", "V-X"))
	require.Equal(t, SourceAggregation, rfq.Source.Kind)
	require.True(t, rfq.Items[0].RequiredQty.Equal(dec(30)))
}

func TestIndentWithLiveRFQCannotBeAggregated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100))
	b := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 50))
	rfq := env.approvedRFQ(t, a.Number, assign("STL", "V-X"))

	_, err := env.svc.Aggregate(ctx, AggregateInput{IndentNumbers: []string{b.Number, a.Number}, CreatedBy: "buyer"})
	requireKind(t, err, ErrValidation)
	require.ErrorContains(t, err, rfq.Number)

	untouched, err := env.svc.GetIndent(ctx, b.Number)
	require.NoError(t, err)
	require.Equal(t, NotAggregated, untouched.AggregateStatus)
	aggs, err := env.svc.ListAggregations(ctx)
	require.NoError(t, err)
	require.Empty(t, aggs)
}

func TestRejectedRFQReleasesIndentForAggregation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 100))
	b := env.approvedIndent(t, lineItem("STL", "Steel Rod", "kg", 50))
	rfq, err := env.svc.CreateRFQ(ctx, CreateRFQInput{
		SourceNumber: a.Number,
		EndDate:      testNow,
		CreatedBy:    "buyer",
		Items:        []RFQItemInput{assign("STL", "V-X")},
	})
	require.NoError(t, err)
	_, err = env.svc.RejectRFQ(ctx, rfq.Number, "manager", "wrong vendor")
	require.NoError(t, err)

	agg, err := env.svc.Aggregate(ctx, AggregateInput{IndentNumbers: []string{a.Number, b.Number}, CreatedBy: "buyer"})
	require.NoError(t, err)
	require.True(t, agg.Items[0].RequiredQuantity.Equal(dec(150)))
}
