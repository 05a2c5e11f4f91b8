package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
)

// Seeder loads a snapshot into the catalog store of record.
type Seeder interface {
	Seed(ctx context.Context, snap catalog.Snapshot) error
}

// CatalogCLI offers operational helpers for catalog reference data.
type CatalogCLI struct {
	seeder Seeder
}

// NewCatalogCLI constructs the helper. seeder may be nil when only
// validation is needed.
func NewCatalogCLI(seeder Seeder) *CatalogCLI {
	return &CatalogCLI{seeder: seeder}
}

// CatalogOptions defines flags shared by the catalog commands.
type CatalogOptions struct {
	File       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CatalogSummary describes the JSON response for catalog commands.
type CatalogSummary struct {
	OK         bool     `json:"ok"`
	Warehouses int      `json:"warehouses"`
	BOMs       int      `json:"boms"`
	Items      int      `json:"items"`
	Vendors    int      `json:"vendors"`
	Problems   []string `json:"problems"`
	Seeded     bool     `json:"seeded"`
}

// ValidateCommand checks a snapshot file and prints the outcome. It exits
// with 10 when the snapshot has integrity problems.
func (c *CatalogCLI) ValidateCommand(ctx context.Context, opts CatalogOptions) int {
	opts = withDefaults(opts)
	snap, code := c.load(opts, "catalog validate")
	if code != 0 {
		return code
	}
	summary := summarise(snap)
	if code := render(opts, "catalog validate", summary); code != 0 {
		return code
	}
	if !summary.OK {
		return 10
	}
	return 0
}

// SeedCommand validates a snapshot file and replaces the stored catalog with it.
func (c *CatalogCLI) SeedCommand(ctx context.Context, opts CatalogOptions) int {
	opts = withDefaults(opts)
	if c == nil || c.seeder == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "catalog seed: no catalog store configured")
		return 1
	}
	snap, code := c.load(opts, "catalog seed")
	if code != 0 {
		return code
	}
	summary := summarise(snap)
	if !summary.OK {
		_ = render(opts, "catalog seed", summary)
		return 10
	}
	if err := c.seeder.Seed(ctx, snap); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "catalog seed: %v\n", err)
		return 1
	}
	summary.Seeded = true
	return render(opts, "catalog seed", summary)
}

func (c *CatalogCLI) load(opts CatalogOptions, command string) (catalog.Snapshot, int) {
	if strings.TrimSpace(opts.File) == "" {
		_, _ = fmt.Fprintf(opts.Stderr, "%s: --file is required\n", command)
		return catalog.Snapshot{}, 1
	}
	snap, err := catalog.LoadFile(opts.File)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_, _ = fmt.Fprintf(opts.Stderr, "%s: file %s not found\n", command, opts.File)
			return catalog.Snapshot{}, 1
		}
		_, _ = fmt.Fprintf(opts.Stderr, "%s: %v\n", command, err)
		return catalog.Snapshot{}, 1
	}
	return snap, 0
}

func withDefaults(opts CatalogOptions) CatalogOptions {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}

func summarise(snap catalog.Snapshot) CatalogSummary {
	problems := snap.Problems()
	if problems == nil {
		problems = []string{}
	}
	return CatalogSummary{
		OK:         len(problems) == 0,
		Warehouses: len(snap.Warehouses),
		BOMs:       len(snap.BOMs),
		Items:      snap.ItemCount(),
		Vendors:    len(snap.Vendors),
		Problems:   problems,
	}
}

func render(opts CatalogOptions, command string, summary CatalogSummary) int {
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "%s: encode json: %v\n", command, err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Catalog %s: %d warehouse(s), %d BOM(s) with %d item(s), %d vendor(s)\n",
		opts.File, summary.Warehouses, summary.BOMs, summary.Items, summary.Vendors)
	if len(summary.Problems) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "No problems found.")
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%d problem(s):\n", len(summary.Problems))
		for _, p := range summary.Problems {
			_, _ = fmt.Fprintf(opts.Stdout, " - %s\n", p)
		}
	}
	if summary.Seeded {
		_, _ = fmt.Fprintln(opts.Stdout, "Catalog tables replaced.")
	}
	return 0
}
