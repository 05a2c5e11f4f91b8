package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/app"
	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
	_ "github.com/odyssey-erp/odyssey-procure/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}

func TestNewNumberGenerator(t *testing.T) {
	gen, err := newNumberGenerator(&app.Config{NumberStrategy: app.NumberStrategySequence, NumberWidth: 3})
	require.NoError(t, err)
	require.NotNil(t, gen)

	gen, err = newNumberGenerator(&app.Config{NumberStrategy: app.NumberStrategySnowflake, SnowflakeNode: 7})
	require.NoError(t, err)
	require.NotNil(t, gen)
}

func TestNewCatalogSourceFromFile(t *testing.T) {
	cfg := &app.Config{CatalogBackend: app.CatalogBackendMemory, CatalogFile: "../../deploy/catalog/sample.json"}
	source, err := newCatalogSource(cfg, nil, nil, nil)
	require.NoError(t, err)

	vendors, err := source.GetVendors(context.Background(), catalog.VendorFilter{Search: "zen"})
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	require.Equal(t, "V-Z", vendors[0].ID)

	_, err = newCatalogSource(&app.Config{CatalogBackend: app.CatalogBackendMemory, CatalogFile: "missing.json"}, nil, nil, nil)
	require.Error(t, err)
}
