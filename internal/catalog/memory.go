package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Snapshot is the seed document layout.
type Snapshot struct {
	Warehouses []Warehouse `json:"warehouses"`
	BOMs       []BOM       `json:"boms"`
	Vendors    []Vendor    `json:"vendors"`
}

// BOM groups the items of one bill of material.
type BOM struct {
	ID      string    `json:"id"`
	Project string    `json:"project"`
	Items   []BOMItem `json:"items"`
}

// Memory serves catalog data from an immutable in-process snapshot.
type Memory struct {
	warehouses map[string]Warehouse
	boms       map[string][]BOMItem
	vendors    []Vendor
}

// NewMemory indexes the snapshot.
func NewMemory(snap Snapshot) *Memory {
	m := &Memory{
		warehouses: make(map[string]Warehouse, len(snap.Warehouses)),
		boms:       make(map[string][]BOMItem, len(snap.BOMs)),
		vendors:    append([]Vendor(nil), snap.Vendors...),
	}
	for _, wh := range snap.Warehouses {
		m.warehouses[wh.ID] = wh
	}
	for _, bom := range snap.BOMs {
		items := make([]BOMItem, 0, len(bom.Items))
		for _, item := range bom.Items {
			item.BOMID = bom.ID
			item.Project = bom.Project
			items = append(items, item)
		}
		m.boms[bom.ID] = items
	}
	sort.Slice(m.vendors, func(i, j int) bool { return m.vendors[i].ID < m.vendors[j].ID })
	return m
}

// ReadSnapshot decodes a JSON snapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("catalog: decode snapshot: %w", err)
	}
	return snap, nil
}

// LoadFile reads a JSON snapshot from disk.
func LoadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// GetWarehouse implements Source.
func (m *Memory) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	wh, ok := m.warehouses[id]
	if !ok {
		return Warehouse{}, ErrNotFound
	}
	return wh, nil
}

// GetBOMItems implements Source.
func (m *Memory) GetBOMItems(ctx context.Context, bomID string) ([]BOMItem, error) {
	items, ok := m.boms[bomID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]BOMItem(nil), items...), nil
}

// GetVendors implements Source.
func (m *Memory) GetVendors(ctx context.Context, filter VendorFilter) ([]Vendor, error) {
	out := make([]Vendor, 0, len(m.vendors))
	for _, v := range m.vendors {
		if filter.Match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
