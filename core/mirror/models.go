package mirror

import (
	"time"

	"github.com/volatiletech/null/v8"
)

type (
	// Document is one remote document: its key and its untyped fields.
	Document struct {
		ID     string
		Fields map[string]Value
	}

	// Record is a coerced row ready to be upserted (column -> text).
	Record map[string]string

	// Row is a row read back from the local cache.
	Row map[string]null.String

	// Filter restricts a cache read to rows whose columns equal the given values.
	Filter map[string]string

	// Table describes one local cache table.
	Table struct {
		Name       string
		PrimaryKey string
		Columns    []string // includes PrimaryKey & SchoolColumn
	}

	// Mapping binds a remote collection to a local table.
	Mapping struct {
		Collection string
		Table      string
		// IDField is the remote field holding the document id; falls back to "id" then the document key.
		IDField string
		// Root mappings mirror the school document itself rather than a sub-collection.
		Root bool
		// DeriveID assigns local ids to documents that carry none (see DeriveID).
		DeriveID bool
	}
)

func (t Table) HasColumn(name string) bool {
	for _, col := range t.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Phase is the state of one table within a sync pass.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseCoercing  Phase = "coercing"
	PhaseUpserting Phase = "upserting"
	PhaseDone      Phase = "done"
)

// TableResult is the outcome of mirroring one table: Success(Rows) when Err is nil, Failure(Err) otherwise.
type TableResult struct {
	Table      string
	Collection string
	Rows       int // rows written
	Skipped    int // malformed documents
	Err        error
}

func (r TableResult) OK() bool { return r.Err == nil }

// Report is the per-table result set of a sync pass.
type Report struct {
	TaskID     string
	SchoolID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Tables     []TableResult
}

// Result returns the result for the named table.
func (r Report) Result(table string) (TableResult, bool) {
	for _, res := range r.Tables {
		if res.Table == table {
			return res, true
		}
	}
	return TableResult{}, false
}

// Failed returns the tables that were not updated.
func (r Report) Failed() []TableResult {
	var failed []TableResult
	for _, res := range r.Tables {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

func (r Report) OK() bool { return len(r.Failed()) == 0 }

// Rows returns the total number of rows written.
func (r Report) Rows() int {
	var n int
	for _, res := range r.Tables {
		n += res.Rows
	}
	return n
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// SyncState is the last recorded outcome for one (school, table).
// SucceededAt only moves on success: it is the "last successfully synced" mark.
type SyncState struct {
	SchoolID    string      `db:"school_id" json:"school_id"`
	Table       string      `db:"table_name" json:"table"`
	Status      string      `db:"status" json:"status"`
	Rows        int         `db:"row_count" json:"rows"`
	Skipped     int         `db:"skipped_count" json:"skipped"`
	Error       null.String `db:"error" json:"error"`
	SyncedAt    time.Time   `db:"synced_at" json:"synced_at"`
	SucceededAt null.Time   `db:"succeeded_at" json:"succeeded_at"`
}
