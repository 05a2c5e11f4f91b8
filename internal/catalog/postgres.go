package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
)

// Postgres reads catalog tables through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs the Postgres source.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// GetWarehouse implements Source.
func (p *Postgres) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	const query = `SELECT id, name, location FROM catalog_warehouses WHERE id = $1`
	var wh Warehouse
	if err := p.pool.QueryRow(ctx, query, id).Scan(&wh.ID, &wh.Name, &wh.Location); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, ErrNotFound
		}
		return Warehouse{}, fmt.Errorf("catalog: get warehouse: %w", err)
	}
	return wh, nil
}

// GetBOMItems implements Source.
func (p *Postgres) GetBOMItems(ctx context.Context, bomID string) ([]BOMItem, error) {
	const query = `SELECT b.id, b.project, i.item_code, i.item_name, i.uom, i.rate::text, i.available_qty::text
FROM catalog_boms b
LEFT JOIN catalog_bom_items i ON i.bom_id = b.id
WHERE b.id = $1
ORDER BY i.line_no`
	rows, err := p.pool.Query(ctx, query, bomID)
	if err != nil {
		return nil, fmt.Errorf("catalog: query bom items: %w", err)
	}
	defer rows.Close()
	found := false
	var items []BOMItem
	for rows.Next() {
		found = true
		var (
			item              BOMItem
			code, name, uom   *string
			rateRaw, availRaw *string
		)
		if err := rows.Scan(&item.BOMID, &item.Project, &code, &name, &uom, &rateRaw, &availRaw); err != nil {
			return nil, fmt.Errorf("catalog: scan bom item: %w", err)
		}
		if code == nil {
			continue
		}
		item.ItemCode, item.ItemName, item.UOM = *code, deref(name), deref(uom)
		if item.Rate, err = parseDecimal(rateRaw); err != nil {
			return nil, err
		}
		if item.AvailableQty, err = parseDecimal(availRaw); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return items, nil
}

// GetVendors implements Source.
func (p *Postgres) GetVendors(ctx context.Context, filter VendorFilter) ([]Vendor, error) {
	query := `SELECT id, name, contact_no, email FROM catalog_vendors`
	var args []any
	if len(filter.IDs) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, filter.IDs)
	}
	query += ` ORDER BY id`
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query vendors: %w", err)
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.ContactNo, &v.Email); err != nil {
			return nil, fmt.Errorf("catalog: scan vendor: %w", err)
		}
		// search folding stays in Go so it matches the memory source
		if filter.Match(v) {
			out = append(out, v)
		}
	}
	return out, rows.Err()
}

// Seed replaces the catalog tables with the snapshot in one transaction.
func (p *Postgres) Seed(ctx context.Context, snap Snapshot) error {
	return db.WithTx(ctx, p.pool, "catalog seed", func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM catalog_bom_items`,
			`DELETE FROM catalog_boms`,
			`DELETE FROM catalog_warehouses`,
			`DELETE FROM catalog_vendors`,
		} {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("catalog: reset: %w", err)
			}
		}
		batch := &pgx.Batch{}
		for _, wh := range snap.Warehouses {
			batch.Queue(`INSERT INTO catalog_warehouses (id, name, location) VALUES ($1, $2, $3)`, wh.ID, wh.Name, wh.Location)
		}
		for _, v := range snap.Vendors {
			batch.Queue(`INSERT INTO catalog_vendors (id, name, contact_no, email) VALUES ($1, $2, $3, $4)`, v.ID, v.Name, v.ContactNo, v.Email)
		}
		for _, bom := range snap.BOMs {
			batch.Queue(`INSERT INTO catalog_boms (id, project) VALUES ($1, $2)`, bom.ID, bom.Project)
			for i, item := range bom.Items {
				batch.Queue(`INSERT INTO catalog_bom_items (bom_id, line_no, item_code, item_name, uom, rate, available_qty) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)`,
					bom.ID, i+1, item.ItemCode, item.ItemName, item.UOM, item.Rate.String(), item.AvailableQty.String())
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseDecimal(raw *string) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog: parse numeric %q: %w", *raw, err)
	}
	return d, nil
}
