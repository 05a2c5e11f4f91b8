// Package catalog exposes read-only master data used by procurement: warehouses,
// bills of material and the vendor directory.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// ErrNotFound is returned when a requested identifier does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Warehouse is a delivery location.
type Warehouse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// BOMItem is a component listed on a bill of material.
type BOMItem struct {
	BOMID        string          `json:"bom_id"`
	Project      string          `json:"project"`
	ItemCode     string          `json:"item_code"`
	ItemName     string          `json:"item_name"`
	UOM          string          `json:"uom"`
	Rate         decimal.Decimal `json:"rate"`
	AvailableQty decimal.Decimal `json:"available_qty"`
}

// Vendor is a supplier that can be invited to quote.
type Vendor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ContactNo string `json:"contact_no"`
	Email     string `json:"email"`
}

// VendorFilter narrows vendor lookups. An empty filter returns every vendor.
type VendorFilter struct {
	IDs    []string
	Search string
}

// Source provides catalog lookups.
type Source interface {
	GetWarehouse(ctx context.Context, id string) (Warehouse, error)
	GetBOMItems(ctx context.Context, bomID string) ([]BOMItem, error)
	GetVendors(ctx context.Context, filter VendorFilter) ([]Vendor, error)
}

// Match reports whether the vendor satisfies the filter.
func (f VendorFilter) Match(v Vendor) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == v.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search == "" {
		return true
	}
	fold := cases.Fold()
	needle := fold.String(f.Search)
	return strings.Contains(fold.String(v.Name), needle) || strings.Contains(fold.String(v.ID), needle)
}
