package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// ensureTestMode stops binaries under test from dialing Redis or Postgres.
func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PROCURE_TEST_MODE", "1")
		if os.Getenv("CATALOG_FILE") == "" {
			_ = os.Setenv("CATALOG_FILE", "deploy/catalog/sample.json")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
