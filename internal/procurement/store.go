package procurement

import (
	"context"
	"sync"
)

// Reader exposes read access shared by the repository and its transactions.
type Reader interface {
	GetIndent(ctx context.Context, number string) (Indent, error)
	ListIndents(ctx context.Context) ([]Indent, error)
	GetAggregation(ctx context.Context, number string) (Aggregation, error)
	ListAggregations(ctx context.Context) ([]Aggregation, error)
	GetRFQ(ctx context.Context, number string) (RFQ, error)
	ListRFQs(ctx context.Context) ([]RFQ, error)
	GetQuotation(ctx context.Context, number string) (Quotation, error)
	ListQuotations(ctx context.Context, rfqNo string) ([]Quotation, error)
	GetCSRow(ctx context.Context, rfqNo, itemCode string) (CSRow, error)
	ListCSRows(ctx context.Context, rfqNo string) ([]CSRow, error)
	GetCSEntry(ctx context.Context, rfqNo, vendorID string) (CSEntry, error)
	ListCSEntries(ctx context.Context, rfqNo string) ([]CSEntry, error)
	ListPurchaseOrders(ctx context.Context, rfqNo string) ([]PurchaseOrder, error)
}

// TxRepository exposes writes available inside WithTx.
type TxRepository interface {
	Reader
	SaveIndent(ctx context.Context, indent Indent) error
	SaveAggregation(ctx context.Context, agg Aggregation) error
	SaveRFQ(ctx context.Context, rfq RFQ) error
	SaveQuotation(ctx context.Context, q Quotation) error
	SaveCSRow(ctx context.Context, row CSRow) error
	SaveCSEntry(ctx context.Context, entry CSEntry) error
	SavePurchaseOrder(ctx context.Context, po PurchaseOrder) error
}

// Repository describes persistence used by Service.
type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type pairKey struct {
	rfqNo string
	id    string
}

type table[K comparable, V any] struct {
	rows  map[K]V
	order []K
}

func newTable[K comparable, V any]() table[K, V] {
	return table[K, V]{rows: make(map[K]V)}
}

func (t table[K, V]) fork() table[K, V] {
	rows := make(map[K]V, len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return table[K, V]{rows: rows, order: append([]K(nil), t.order...)}
}

func (t *table[K, V]) put(k K, v V) {
	if _, ok := t.rows[k]; !ok {
		t.order = append(t.order, k)
	}
	t.rows[k] = v
}

type state struct {
	indents      table[string, Indent]
	aggregations table[string, Aggregation]
	rfqs         table[string, RFQ]
	quotations   table[string, Quotation]
	csRows       table[pairKey, CSRow]
	csEntries    table[pairKey, CSEntry]
	orders       table[string, PurchaseOrder]
}

func newState() *state {
	return &state{
		indents:      newTable[string, Indent](),
		aggregations: newTable[string, Aggregation](),
		rfqs:         newTable[string, RFQ](),
		quotations:   newTable[string, Quotation](),
		csRows:       newTable[pairKey, CSRow](),
		csEntries:    newTable[pairKey, CSEntry](),
		orders:       newTable[string, PurchaseOrder](),
	}
}

// fork copies the indexes. Stored values are never mutated in place, so
// sharing them between the live and staged state is safe.
func (s *state) fork() *state {
	return &state{
		indents:      s.indents.fork(),
		aggregations: s.aggregations.fork(),
		rfqs:         s.rfqs.fork(),
		quotations:   s.quotations.fork(),
		csRows:       s.csRows.fork(),
		csEntries:    s.csEntries.fork(),
		orders:       s.orders.fork(),
	}
}

// MemoryStore keeps procurement state in process memory. Writers are
// serialised; each transaction works on a staged copy that replaces the live
// state only when the callback succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *state
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newState()}
}

// WithTx runs fn against a staged copy and commits it when fn returns nil.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := &stateView{state: m.state.fork()}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	m.state = staged.state
	return nil
}

func (m *MemoryStore) view() *stateView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &stateView{state: m.state}
}

func (m *MemoryStore) GetIndent(ctx context.Context, number string) (Indent, error) {
	return m.view().GetIndent(ctx, number)
}

func (m *MemoryStore) ListIndents(ctx context.Context) ([]Indent, error) {
	return m.view().ListIndents(ctx)
}

func (m *MemoryStore) GetAggregation(ctx context.Context, number string) (Aggregation, error) {
	return m.view().GetAggregation(ctx, number)
}

func (m *MemoryStore) ListAggregations(ctx context.Context) ([]Aggregation, error) {
	return m.view().ListAggregations(ctx)
}

func (m *MemoryStore) GetRFQ(ctx context.Context, number string) (RFQ, error) {
	return m.view().GetRFQ(ctx, number)
}

func (m *MemoryStore) ListRFQs(ctx context.Context) ([]RFQ, error) {
	return m.view().ListRFQs(ctx)
}

func (m *MemoryStore) GetQuotation(ctx context.Context, number string) (Quotation, error) {
	return m.view().GetQuotation(ctx, number)
}

func (m *MemoryStore) ListQuotations(ctx context.Context, rfqNo string) ([]Quotation, error) {
	return m.view().ListQuotations(ctx, rfqNo)
}

func (m *MemoryStore) GetCSRow(ctx context.Context, rfqNo, itemCode string) (CSRow, error) {
	return m.view().GetCSRow(ctx, rfqNo, itemCode)
}

func (m *MemoryStore) ListCSRows(ctx context.Context, rfqNo string) ([]CSRow, error) {
	return m.view().ListCSRows(ctx, rfqNo)
}

func (m *MemoryStore) GetCSEntry(ctx context.Context, rfqNo, vendorID string) (CSEntry, error) {
	return m.view().GetCSEntry(ctx, rfqNo, vendorID)
}

func (m *MemoryStore) ListCSEntries(ctx context.Context, rfqNo string) ([]CSEntry, error) {
	return m.view().ListCSEntries(ctx, rfqNo)
}

func (m *MemoryStore) ListPurchaseOrders(ctx context.Context, rfqNo string) ([]PurchaseOrder, error) {
	return m.view().ListPurchaseOrders(ctx, rfqNo)
}

// stateView reads from a state and, inside a transaction, writes to it.
// The live state is only ever swapped whole, so a view taken under the read
// lock stays consistent after the lock is released.
type stateView struct {
	state *state
}

func (v *stateView) GetIndent(ctx context.Context, number string) (Indent, error) {
	indent, ok := v.state.indents.rows[number]
	if !ok {
		return Indent{}, referenceErr("indent", number)
	}
	return indent.clone(), nil
}

func (v *stateView) ListIndents(ctx context.Context) ([]Indent, error) {
	out := make([]Indent, 0, len(v.state.indents.order))
	for _, k := range v.state.indents.order {
		out = append(out, v.state.indents.rows[k].clone())
	}
	return out, nil
}

func (v *stateView) GetAggregation(ctx context.Context, number string) (Aggregation, error) {
	agg, ok := v.state.aggregations.rows[number]
	if !ok {
		return Aggregation{}, referenceErr("aggregation", number)
	}
	return agg.clone(), nil
}

func (v *stateView) ListAggregations(ctx context.Context) ([]Aggregation, error) {
	out := make([]Aggregation, 0, len(v.state.aggregations.order))
	for _, k := range v.state.aggregations.order {
		out = append(out, v.state.aggregations.rows[k].clone())
	}
	return out, nil
}

func (v *stateView) GetRFQ(ctx context.Context, number string) (RFQ, error) {
	rfq, ok := v.state.rfqs.rows[number]
	if !ok {
		return RFQ{}, referenceErr("rfq", number)
	}
	return rfq.clone(), nil
}

func (v *stateView) ListRFQs(ctx context.Context) ([]RFQ, error) {
	out := make([]RFQ, 0, len(v.state.rfqs.order))
	for _, k := range v.state.rfqs.order {
		out = append(out, v.state.rfqs.rows[k].clone())
	}
	return out, nil
}

func (v *stateView) GetQuotation(ctx context.Context, number string) (Quotation, error) {
	q, ok := v.state.quotations.rows[number]
	if !ok {
		return Quotation{}, referenceErr("quotation", number)
	}
	return q.clone(), nil
}

func (v *stateView) ListQuotations(ctx context.Context, rfqNo string) ([]Quotation, error) {
	var out []Quotation
	for _, k := range v.state.quotations.order {
		q := v.state.quotations.rows[k]
		if rfqNo == "" || q.RFQNo == rfqNo {
			out = append(out, q.clone())
		}
	}
	return out, nil
}

func (v *stateView) GetCSRow(ctx context.Context, rfqNo, itemCode string) (CSRow, error) {
	row, ok := v.state.csRows.rows[pairKey{rfqNo, itemCode}]
	if !ok {
		return CSRow{}, referenceErr("cs row", rfqNo+"/"+itemCode)
	}
	return row.clone(), nil
}

func (v *stateView) ListCSRows(ctx context.Context, rfqNo string) ([]CSRow, error) {
	var out []CSRow
	for _, k := range v.state.csRows.order {
		if k.rfqNo == rfqNo {
			out = append(out, v.state.csRows.rows[k].clone())
		}
	}
	return out, nil
}

func (v *stateView) GetCSEntry(ctx context.Context, rfqNo, vendorID string) (CSEntry, error) {
	entry, ok := v.state.csEntries.rows[pairKey{rfqNo, vendorID}]
	if !ok {
		return CSEntry{}, referenceErr("cs entry", rfqNo+"/"+vendorID)
	}
	return entry.clone(), nil
}

func (v *stateView) ListCSEntries(ctx context.Context, rfqNo string) ([]CSEntry, error) {
	var out []CSEntry
	for _, k := range v.state.csEntries.order {
		if k.rfqNo == rfqNo {
			out = append(out, v.state.csEntries.rows[k].clone())
		}
	}
	return out, nil
}

func (v *stateView) ListPurchaseOrders(ctx context.Context, rfqNo string) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, k := range v.state.orders.order {
		po := v.state.orders.rows[k]
		if rfqNo == "" || po.RFQNo == rfqNo {
			out = append(out, po.clone())
		}
	}
	return out, nil
}

func (v *stateView) SaveIndent(ctx context.Context, indent Indent) error {
	v.state.indents.put(indent.Number, indent.clone())
	return nil
}

func (v *stateView) SaveAggregation(ctx context.Context, agg Aggregation) error {
	v.state.aggregations.put(agg.Number, agg.clone())
	return nil
}

func (v *stateView) SaveRFQ(ctx context.Context, rfq RFQ) error {
	v.state.rfqs.put(rfq.Number, rfq.clone())
	return nil
}

func (v *stateView) SaveQuotation(ctx context.Context, q Quotation) error {
	v.state.quotations.put(q.Number, q.clone())
	return nil
}

func (v *stateView) SaveCSRow(ctx context.Context, row CSRow) error {
	v.state.csRows.put(pairKey{row.RFQNo, row.ItemCode}, row.clone())
	return nil
}

func (v *stateView) SaveCSEntry(ctx context.Context, entry CSEntry) error {
	v.state.csEntries.put(pairKey{entry.RFQNo, entry.Vendor.ID}, entry.clone())
	return nil
}

func (v *stateView) SavePurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	v.state.orders.put(po.Number, po.clone())
	return nil
}
