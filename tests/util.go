package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
	logsvc "github.com/trezcool/edurise/services/logger"
	"github.com/trezcool/edurise/storage/database"
)

// NewConfig returns the TEST config with the cache in a temp sqlite file.
func NewConfig(t *testing.T) *core.Config {
	conf, err := core.LoadConfig("TEST")
	if err != nil {
		t.Fatalf("NewConfig() failed: %v", err)
	}
	conf.Debug = true
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "cache.db")
	return conf
}

// NewLogger returns a logger that discards everything (set verbose to print to stderr).
func NewLogger(conf *core.Config, verbose ...bool) core.Logger {
	var out io.Writer = io.Discard
	if len(verbose) > 0 && verbose[0] {
		out = log.Writer()
	}
	return logsvc.NewRollbarLogger(log.New(out, "TEST : ", log.Lmicroseconds), conf)
}

// PrepareDB opens a fresh, migrated cache database; it is closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	conf := NewConfig(t)
	ctx := context.Background()

	db, err := database.Connect(ctx, conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	policy, err := database.NewMigrationPolicy(database.PolicyVersioned, NewLogger(conf))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = policy.Migrate(ctx, db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// DumpRows renders rows as sorted "col=val" lines, one row per line, nulls omitted.
func DumpRows(rows []mirror.Row, cols ...string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		keys := cols
		if len(keys) == 0 {
			keys = make([]string, 0, len(row))
			for col := range row {
				keys = append(keys, col)
			}
			sort.Strings(keys)
		}
		fields := make([]string, 0, len(keys))
		for _, col := range keys {
			if val := row[col]; val.Valid {
				fields = append(fields, col+"="+val.String)
			}
		}
		lines = append(lines, strings.Join(fields, " "))
	}
	return strings.Join(lines, "\n") + "\n"
}

// AssertDump fails the test with a unified diff when got differs from want.
func AssertDump(t *testing.T, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		t.Fatalf("AssertDump() failed: %v", err)
	}
	t.Errorf("cache mismatch:\n%s", diff)
}
