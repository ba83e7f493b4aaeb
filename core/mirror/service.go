package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/edurise/core"
)

var nowFunc = time.Now // mockable

type (
	// Fetcher lists remote documents scoped to a school.
	Fetcher interface {
		// FetchSchool returns the school root document, or ErrSchoolNotFound.
		FetchSchool(ctx context.Context, schoolID string) (Document, error)
		// FetchCollection returns every document of the school's collection, in no particular order.
		FetchCollection(ctx context.Context, schoolID, collection string) ([]Document, error)
	}

	// Store is the local relational cache.
	Store interface {
		EnsureSchema(ctx context.Context) error
		// Upsert inserts or replaces records by primary key in a single transaction:
		// all records are written or none.
		Upsert(ctx context.Context, table Table, schoolID string, records []Record) (int, error)
		Read(ctx context.Context, table Table, filter Filter) ([]Row, error)
		SaveSyncState(ctx context.Context, state SyncState) error
		QuerySyncStates(ctx context.Context, schoolID string) ([]SyncState, error)
	}

	Options struct {
		Mappings    []Mapping     // defaults to DefaultMappings
		Concurrency int           // tables synced at once; 1 is sequential
		Timeout     time.Duration // per pass; 0 means none
	}
)

// Service mirrors remote school collections into the local cache.
type Service struct {
	store  Store
	remote Fetcher
	logger core.Logger
	opts   Options

	mu         sync.Mutex
	inflight   map[string]*Task         // school id -> running pass
	tableLocks map[string]chan struct{} // table -> write slot
}

func NewService(store Store, remote Fetcher, logger core.Logger, opts Options) *Service {
	if opts.Mappings == nil {
		opts.Mappings = DefaultMappings
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Service{
		store:      store,
		remote:     remote,
		logger:     logger,
		opts:       opts,
		inflight:   make(map[string]*Task),
		tableLocks: make(map[string]chan struct{}),
	}
}

func (svc *Service) EnsureSchema(ctx context.Context) error {
	return errors.Wrap(svc.store.EnsureSchema(ctx), "ensuring cache schema")
}

// Start launches a sync pass for the school and returns without waiting for it.
// At most one pass runs per school: a second request gets the running Task
// along with a ConflictError (errors.Is(err, ErrSyncInProgress)).
func (svc *Service) Start(ctx context.Context, schoolID string) (*Task, error) {
	schoolID = core.CleanString(schoolID)
	if schoolID == "" {
		return nil, core.NewValidationError(
			errors.New("school id is required"),
			core.FieldError{Field: "school_id", Error: "this field is required"},
		)
	}

	svc.mu.Lock()
	if running, ok := svc.inflight[schoolID]; ok {
		svc.mu.Unlock()
		return running, &ConflictError{Task: running}
	}
	task := newTask(ctx, schoolID, svc.opts.Timeout)
	svc.inflight[schoolID] = task
	svc.mu.Unlock()

	go func() {
		report, err := svc.run(task)

		svc.mu.Lock()
		delete(svc.inflight, schoolID)
		svc.mu.Unlock()

		task.finish(report, err)
	}()
	return task, nil
}

// Sync runs a pass and waits for its report. Cancelling ctx cancels the pass.
func (svc *Service) Sync(ctx context.Context, schoolID string) (Report, error) {
	task, err := svc.Start(ctx, schoolID)
	if err != nil {
		return Report{}, err
	}
	<-task.Done()
	return task.Result()
}

// Running returns the pass in flight for the school, if any.
func (svc *Service) Running(schoolID string) (*Task, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	task, ok := svc.inflight[core.CleanString(schoolID)]
	return task, ok
}

// ReadLocalCache returns the cached rows of table matching filter, ordered by primary key.
func (svc *Service) ReadLocalCache(ctx context.Context, table string, filter Filter) ([]Row, error) {
	t, ok := LookupTable(core.CleanString(table))
	if !ok {
		return nil, core.NewValidationError(
			errors.Wrapf(ErrUnknownTable, "%q", table),
			core.FieldError{Field: "table", Error: ErrUnknownTable.Error()},
		)
	}
	for col := range filter {
		if !t.HasColumn(col) {
			return nil, core.NewValidationError(
				errors.Wrapf(ErrUnknownColumn, "%s.%s", t.Name, col),
				core.FieldError{Field: col, Error: ErrUnknownColumn.Error()},
			)
		}
	}
	rows, err := svc.store.Read(ctx, t, filter)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", t.Name)
	}
	return rows, nil
}

// SyncStatus returns the last recorded outcome of every table of the school.
func (svc *Service) SyncStatus(ctx context.Context, schoolID string) ([]SyncState, error) {
	states, err := svc.store.QuerySyncStates(ctx, core.CleanString(schoolID))
	if err != nil {
		return nil, errors.Wrap(err, "querying sync states")
	}
	return states, nil
}

func (svc *Service) run(task *Task) (Report, error) {
	scope := core.LogScope{SchoolID: task.SchoolID, TaskID: task.ID}
	report := Report{TaskID: task.ID, SchoolID: task.SchoolID, StartedAt: task.StartedAt}
	svc.logger.Info("sync started", scope)

	var roots, mappings []Mapping
	for _, m := range svc.opts.Mappings {
		if m.Root {
			roots = append(roots, m)
		} else {
			mappings = append(mappings, m)
		}
	}

	// the school row goes first: nothing is mirrored for a school that does not exist
	for _, m := range roots {
		res := svc.syncTable(task, m)
		if errors.Is(res.Err, ErrSchoolNotFound) {
			report.FinishedAt = nowFunc().UTC()
			svc.logger.Warn("sync aborted: school not found", scope)
			return report, ErrSchoolNotFound
		}
		report.Tables = append(report.Tables, res)
	}

	results := make([]TableResult, len(mappings))
	var g errgroup.Group
	g.SetLimit(svc.opts.Concurrency)
	for i, m := range mappings {
		i, m := i, m
		g.Go(func() error {
			results[i] = svc.syncTable(task, m)
			return nil // table failures never stop the pass
		})
	}
	_ = g.Wait()
	report.Tables = append(report.Tables, results...)
	report.FinishedAt = nowFunc().UTC()

	failed := report.Failed()
	svc.logger.Info(
		fmt.Sprintf("sync finished: %d rows, %d/%d tables failed", report.Rows(), len(failed), len(report.Tables)),
		scope,
	)
	if err := task.ctx.Err(); err != nil {
		return report, errors.Wrap(err, "sync interrupted")
	}
	return report, nil
}

func (svc *Service) syncTable(task *Task, m Mapping) TableResult {
	res := TableResult{Table: m.Table, Collection: m.Collection}
	scope := core.LogScope{SchoolID: task.SchoolID, TaskID: task.ID}
	defer task.setPhase(m.Table, PhaseDone)

	table, ok := LookupTable(m.Table)
	if !ok {
		res.Err = errors.Wrapf(ErrUnknownTable, "%q", m.Table)
		return res
	}
	if err := task.ctx.Err(); err != nil {
		res.Err = err
		svc.saveState(task, res)
		return res
	}

	task.setPhase(m.Table, PhaseFetching)
	docs, err := svc.fetch(task.ctx, task.SchoolID, m)
	if err != nil {
		if errors.Is(err, ErrSchoolNotFound) {
			res.Err = err
			return res
		}
		if !IsRemoteUnavailable(err) {
			err = NewRemoteUnavailable(m.Collection, err)
		}
		res.Err = err
		svc.logger.Warn("skipping "+m.Table, err, scope)
		svc.saveState(task, res)
		return res
	}

	task.setPhase(m.Table, PhaseCoercing)
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := buildRecord(table, m, task.SchoolID, doc)
		if err != nil {
			res.Skipped++
			svc.logger.Debug(fmt.Sprintf("%s: skipping document %q", m.Collection, doc.ID), err, scope)
			continue
		}
		records = append(records, rec)
	}

	task.setPhase(m.Table, PhaseUpserting)
	n, err := svc.upsert(task.ctx, table, task.SchoolID, records)
	if err != nil {
		if !IsLocalWriteFailure(err) {
			err = NewLocalWriteFailure(table.Name, err)
		}
		res.Err = err
		svc.logger.Error("upserting "+table.Name, err, scope)
		svc.saveState(task, res)
		return res
	}
	res.Rows = n
	svc.logger.Debug(fmt.Sprintf("synced %s (%d rows, %d skipped)", table.Name, n, res.Skipped), scope)
	svc.saveState(task, res)
	return res
}

func (svc *Service) fetch(ctx context.Context, schoolID string, m Mapping) ([]Document, error) {
	if m.Root {
		doc, err := svc.remote.FetchSchool(ctx, schoolID)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}
	return svc.remote.FetchCollection(ctx, schoolID, m.Collection)
}

// upsert holds the table's write slot: one upsert per table at a time, whatever the school.
func (svc *Service) upsert(ctx context.Context, table Table, schoolID string, records []Record) (int, error) {
	svc.mu.Lock()
	slot, ok := svc.tableLocks[table.Name]
	if !ok {
		slot = make(chan struct{}, 1)
		svc.tableLocks[table.Name] = slot
	}
	svc.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-slot }()
	return svc.store.Upsert(ctx, table, schoolID, records)
}

// saveState records the table outcome; bookkeeping failures are only logged.
func (svc *Service) saveState(task *Task, res TableResult) {
	now := nowFunc().UTC()
	state := SyncState{
		SchoolID: task.SchoolID,
		Table:    res.Table,
		Rows:     res.Rows,
		Skipped:  res.Skipped,
		SyncedAt: now,
	}
	if res.OK() {
		state.Status = StatusSuccess
		state.SucceededAt = null.TimeFrom(now)
	} else {
		state.Status = StatusFailure
		state.Error = null.StringFrom(res.Err.Error())
	}

	// the pass may have been cancelled: bookkeeping still goes through
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.store.SaveSyncState(ctx, state); err != nil {
		svc.logger.Error("saving sync state of "+res.Table, err, core.LogScope{SchoolID: task.SchoolID, TaskID: task.ID})
	}
}

// buildRecord coerces a document into a row of table, scoped to the school.
func buildRecord(table Table, m Mapping, schoolID string, doc Document) (Record, error) {
	cols := Coerce(doc.Fields)
	rec := make(Record, len(table.Columns))
	for name, text := range cols {
		if table.HasColumn(name) {
			rec[name] = text
		}
	}

	// the document key is never an id on its own: a document without its id field is malformed
	var id string
	switch {
	case m.Root:
		id = schoolID
	case cols[m.IDField] != "":
		id = cols[m.IDField]
	case cols["id"] != "":
		id = cols["id"]
	case m.DeriveID && doc.ID != "":
		id = DeriveID(schoolID, m.Collection, doc.ID)
	}
	if core.CleanString(id) == "" {
		return nil, ErrMalformedDocument
	}

	rec[table.PrimaryKey] = id
	rec[SchoolColumn] = schoolID
	return rec, nil
}
