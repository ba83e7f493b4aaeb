package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/edurise/core/mirror"
)

type stateKey struct {
	schoolID string
	table    string
}

// DB is an in-process cache used by tests and the memory dev mode.
type DB struct {
	mutex  sync.RWMutex
	tables map[string]map[string]mirror.Record // table -> pk -> record
	states map[stateKey]mirror.SyncState

	failures  map[string]error // table -> injected upsert error
	active    map[string]int   // table -> upserts in progress
	maxActive map[string]int

	// BeforeUpsert, when set, runs at the start of each upsert (outside the lock).
	BeforeUpsert func(ctx context.Context, table string, schoolID string)
}

func Open() *DB {
	return &DB{
		tables:    make(map[string]map[string]mirror.Record),
		states:    make(map[stateKey]mirror.SyncState),
		failures:  make(map[string]error),
		active:    make(map[string]int),
		maxActive: make(map[string]int),
	}
}

// FailUpserts makes every upsert into table fail with err (nil clears it).
func (db *DB) FailUpserts(table string, err error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if err == nil {
		delete(db.failures, table)
		return
	}
	db.failures[table] = err
}

// MaxConcurrentUpserts returns the highest number of upserts seen at once on table.
func (db *DB) MaxConcurrentUpserts(table string) int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.maxActive[table]
}

// Count returns the number of rows held in table.
func (db *DB) Count(table string) int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.tables[table])
}

type cacheStore struct {
	db *DB
}

var _ mirror.Store = (*cacheStore)(nil)

func NewCacheStore(db *DB) *cacheStore {
	return &cacheStore{db: db}
}

func (store *cacheStore) EnsureSchema(context.Context) error {
	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()
	for _, t := range mirror.Tables {
		if _, ok := store.db.tables[t.Name]; !ok {
			store.db.tables[t.Name] = make(map[string]mirror.Record)
		}
	}
	return nil
}

func (store *cacheStore) track(table string, delta int) {
	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()
	store.db.active[table] += delta
	if store.db.active[table] > store.db.maxActive[table] {
		store.db.maxActive[table] = store.db.active[table]
	}
}

func (store *cacheStore) Upsert(ctx context.Context, table mirror.Table, schoolID string, records []mirror.Record) (int, error) {
	store.track(table.Name, 1)
	defer store.track(table.Name, -1)

	if hook := store.db.BeforeUpsert; hook != nil {
		hook(ctx, table.Name, schoolID)
	}
	if err := ctx.Err(); err != nil {
		return 0, mirror.NewLocalWriteFailure(table.Name, err)
	}

	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()

	if err := store.db.failures[table.Name]; err != nil {
		return 0, mirror.NewLocalWriteFailure(table.Name, err)
	}
	rows, ok := store.db.tables[table.Name]
	if !ok {
		return 0, mirror.NewLocalWriteFailure(table.Name, mirror.ErrUnknownTable)
	}

	// validate the whole batch before touching the table: all rows or none
	for _, rec := range records {
		if rec[table.PrimaryKey] == "" {
			return 0, mirror.NewLocalWriteFailure(table.Name, mirror.ErrMalformedDocument)
		}
		for col := range rec {
			if !table.HasColumn(col) {
				return 0, mirror.NewLocalWriteFailure(table.Name, mirror.ErrUnknownColumn)
			}
		}
	}

	if schools := store.db.tables[mirror.SchoolTable.Name]; schools != nil && schools[schoolID] == nil {
		schools[schoolID] = mirror.Record{mirror.SchoolTable.PrimaryKey: schoolID}
	}
	for _, rec := range records {
		pk := rec[table.PrimaryKey]
		row, ok := rows[pk]
		if !ok {
			row = make(mirror.Record, len(rec))
			rows[pk] = row
		}
		// only save set columns
		for col, val := range rec {
			row[col] = val
		}
	}
	return len(records), nil
}

func (store *cacheStore) Read(_ context.Context, table mirror.Table, filter mirror.Filter) ([]mirror.Row, error) {
	store.db.mutex.RLock()
	defer store.db.mutex.RUnlock()

	result := make([]mirror.Row, 0)
	for _, rec := range store.db.tables[table.Name] {
		if !matches(rec, filter) {
			continue
		}
		row := make(mirror.Row, len(table.Columns))
		for _, col := range table.Columns {
			if val, ok := rec[col]; ok {
				row[col] = null.StringFrom(val)
			} else {
				row[col] = null.String{}
			}
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i][table.PrimaryKey].String < result[j][table.PrimaryKey].String
	})
	return result, nil
}

func matches(rec mirror.Record, filter mirror.Filter) bool {
	for col, want := range filter {
		if val, ok := rec[col]; !ok || val != want {
			return false
		}
	}
	return true
}

func (store *cacheStore) SaveSyncState(_ context.Context, state mirror.SyncState) error {
	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()

	key := stateKey{schoolID: state.SchoolID, table: state.Table}
	if prev, ok := store.db.states[key]; ok && !state.SucceededAt.Valid {
		state.SucceededAt = prev.SucceededAt
	}
	store.db.states[key] = state
	return nil
}

func (store *cacheStore) QuerySyncStates(_ context.Context, schoolID string) ([]mirror.SyncState, error) {
	store.db.mutex.RLock()
	defer store.db.mutex.RUnlock()

	states := make([]mirror.SyncState, 0)
	for key, state := range store.db.states {
		if key.schoolID == schoolID {
			states = append(states, state)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Table < states[j].Table })
	return states, nil
}
