package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
	"github.com/odyssey-erp/odyssey-procure/jobs"
)

const validCatalog = `{
  "warehouses": [{"id": "WH-1", "name": "Central Store", "location": "Plot 4"}],
  "boms": [{"id": "BOM-1", "project": "Tower A", "items": [
    {"item_code": "STL", "item_name": "Steel Rod", "uom": "kg", "rate": "70", "available_qty": "5"}
  ]}],
  "vendors": [{"id": "V-X", "name": "Xeno Steel"}]
}`

type stubSeeder struct {
	seeded []catalog.Snapshot
	err    error
}

func (s *stubSeeder) Seed(ctx context.Context, snap catalog.Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.seeded = append(s.seeded, snap)
	return nil
}

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestValidateCommandJSON(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := NewCatalogCLI(nil).ValidateCommand(context.Background(), CatalogOptions{
		File:       writeCatalog(t, validCatalog),
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary CatalogSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Equal(t, 1, summary.Items)
	require.Empty(t, summary.Problems)
}

func TestValidateCommandReportsProblems(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := NewCatalogCLI(nil).ValidateCommand(context.Background(), CatalogOptions{
		File:   writeCatalog(t, `{"vendors": [{"id": "V1"}, {"id": "V1"}]}`),
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), "duplicate vendor V1")
}

func TestValidateCommandMissingFile(t *testing.T) {
	stderr := new(bytes.Buffer)
	cli := NewCatalogCLI(nil)

	require.Equal(t, 1, cli.ValidateCommand(context.Background(), CatalogOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "--file is required")

	stderr.Reset()
	code := cli.ValidateCommand(context.Background(), CatalogOptions{
		File:   filepath.Join(t.TempDir(), "absent.json"),
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "not found")
}

func TestSeedCommand(t *testing.T) {
	seeder := &stubSeeder{}
	stdout := new(bytes.Buffer)
	code := NewCatalogCLI(seeder).SeedCommand(context.Background(), CatalogOptions{
		File:   writeCatalog(t, validCatalog),
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Len(t, seeder.seeded, 1)
	require.Equal(t, "Xeno Steel", seeder.seeded[0].Vendors[0].Name)
	require.Contains(t, stdout.String(), "Catalog tables replaced.")

	code = NewCatalogCLI(seeder).SeedCommand(context.Background(), CatalogOptions{
		File:   writeCatalog(t, `{"warehouses": [{"id": ""}]}`),
		Stdout: new(bytes.Buffer),
		Stderr: new(bytes.Buffer),
	})
	require.Equal(t, 10, code)
	require.Len(t, seeder.seeded, 1)

	seeder.err = errors.New("db down")
	stderr := new(bytes.Buffer)
	code = NewCatalogCLI(seeder).SeedCommand(context.Background(), CatalogOptions{
		File:   writeCatalog(t, validCatalog),
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "db down")

	require.Equal(t, 1, NewCatalogCLI(nil).SeedCommand(context.Background(), CatalogOptions{Stderr: new(bytes.Buffer)}))
}

type stubRefresher struct {
	reasons []string
}

func (s *stubRefresher) EnqueueCatalogRefresh(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	s.reasons = append(s.reasons, reason)
	return &asynq.TaskInfo{Type: jobs.TaskCatalogRefresh, Queue: jobs.QueueDefault}, nil
}

func (s *stubRefresher) Close() error { return nil }

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 3, Retry: 1}, nil
}

func (stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (stubInspector) Close() error { return nil }

func TestJobsCLITriggerAndStats(t *testing.T) {
	refresher := &stubRefresher{}
	c := &JobsCLI{client: refresher, inspector: stubInspector{}}

	info, err := c.Trigger(context.Background(), jobs.TaskCatalogRefresh)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskCatalogRefresh, info.Type)
	require.Equal(t, []string{"manual"}, refresher.reasons)

	_, err = c.Trigger(context.Background(), jobs.TaskProcurementEvent)
	require.Error(t, err)

	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Pending)

	out := new(bytes.Buffer)
	PrintStats(out, stats)
	require.Equal(t, "queue=default pending=3 active=0 scheduled=0 retry=1 archived=0\n", out.String())
	require.NoError(t, c.Close())
}
