package sqlxrepos

import (
	"context"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
	"github.com/trezcool/edurise/storage/database"
)

const syncStateTable = "sync_state"

type cacheStore struct {
	db     *sqlx.DB
	sb     sq.StatementBuilderType
	policy database.MigrationPolicy
}

var _ mirror.Store = (*cacheStore)(nil)

func NewCacheStore(db *sqlx.DB, policy database.MigrationPolicy) *cacheStore {
	var format sq.PlaceholderFormat = sq.Question
	if db.DriverName() == database.EnginePostgres {
		format = sq.Dollar
	}
	return &cacheStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		policy: policy,
	}
}

func (store *cacheStore) EnsureSchema(ctx context.Context) error {
	return store.policy.Migrate(ctx, store.db)
}

func (store *cacheStore) Upsert(ctx context.Context, table mirror.Table, schoolID string, records []mirror.Record) (int, error) {
	tx, err := store.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, mirror.NewLocalWriteFailure(table.Name, errors.Wrap(err, "beginning transaction"))
	}
	defer func() { _ = tx.Rollback() }()

	if table.Name != mirror.SchoolTable.Name {
		if err = store.ensureSchool(ctx, tx, schoolID); err != nil {
			return 0, mirror.NewLocalWriteFailure(table.Name, err)
		}
	}

	for _, rec := range records {
		q, args, err := store.upsertQuery(table, rec).ToSql()
		if err != nil {
			return 0, mirror.NewLocalWriteFailure(table.Name, errors.Wrap(err, "building upsert"))
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return 0, mirror.NewLocalWriteFailure(table.Name, errors.Wrapf(err, "upserting %s", rec[table.PrimaryKey]))
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, mirror.NewLocalWriteFailure(table.Name, errors.Wrap(err, "committing transaction"))
	}
	return len(records), nil
}

// ensureSchool inserts a bare parent row so child tables never wait on the school table.
func (store *cacheStore) ensureSchool(ctx context.Context, tx core.DBExecutor, schoolID string) error {
	pk := quote(mirror.SchoolTable.PrimaryKey)
	q, args, err := store.sb.
		Insert(quote(mirror.SchoolTable.Name)).
		Columns(pk).
		Values(schoolID).
		Suffix("ON CONFLICT (" + pk + ") DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building school stub")
	}
	_, err = tx.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "inserting school stub")
}

// upsertQuery replaces the columns present in rec; absent columns keep their value.
func (store *cacheStore) upsertQuery(table mirror.Table, rec mirror.Record) sq.InsertBuilder {
	cols := make([]string, 0, len(rec))
	for col := range rec {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, 0, len(cols))
	values := make([]interface{}, 0, len(cols))
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		qc := quote(col)
		quoted = append(quoted, qc)
		values = append(values, rec[col])
		if col != table.PrimaryKey {
			sets = append(sets, qc+" = excluded."+qc)
		}
	}

	conflict := "ON CONFLICT (" + quote(table.PrimaryKey) + ") DO NOTHING"
	if len(sets) > 0 {
		conflict = "ON CONFLICT (" + quote(table.PrimaryKey) + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return store.sb.
		Insert(quote(table.Name)).
		Columns(quoted...).
		Values(values...).
		Suffix(conflict)
}

func (store *cacheStore) Read(ctx context.Context, table mirror.Table, filter mirror.Filter) ([]mirror.Row, error) {
	cols := make([]string, 0, len(table.Columns))
	for _, col := range table.Columns {
		cols = append(cols, quote(col))
	}
	query := store.sb.
		Select(cols...).
		From(quote(table.Name)).
		OrderBy(core.DBOrdering{Field: quote(table.PrimaryKey), Ascending: true}.String())
	if len(filter) > 0 {
		eq := make(sq.Eq, len(filter))
		for col, val := range filter {
			eq[quote(col)] = val
		}
		query = query.Where(eq)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows, err := store.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying rows")
	}
	defer func() { _ = rows.Close() }()

	result := make([]mirror.Row, 0)
	for rows.Next() {
		vals := make([]null.String, len(table.Columns))
		dest := make([]interface{}, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		row := make(mirror.Row, len(table.Columns))
		for i, col := range table.Columns {
			row[col] = vals[i]
		}
		result = append(result, row)
	}
	return result, errors.Wrap(rows.Err(), "iterating rows")
}

func (store *cacheStore) SaveSyncState(ctx context.Context, state mirror.SyncState) error {
	q, args, err := store.sb.
		Insert(syncStateTable).
		Columns("school_id", "table_name", "status", "row_count", "skipped_count", "error", "synced_at", "succeeded_at").
		Values(state.SchoolID, state.Table, state.Status, state.Rows, state.Skipped, state.Error, state.SyncedAt, state.SucceededAt).
		Suffix(`ON CONFLICT (school_id, table_name) DO UPDATE SET
			status = excluded.status,
			row_count = excluded.row_count,
			skipped_count = excluded.skipped_count,
			error = excluded.error,
			synced_at = excluded.synced_at,
			succeeded_at = COALESCE(excluded.succeeded_at, ` + syncStateTable + `.succeeded_at)`).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	_, err = store.db.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "saving sync state")
}

func (store *cacheStore) QuerySyncStates(ctx context.Context, schoolID string) ([]mirror.SyncState, error) {
	q, args, err := store.sb.
		Select("school_id", "table_name", "status", "row_count", "skipped_count", "error", "synced_at", "succeeded_at").
		From(syncStateTable).
		Where(sq.Eq{"school_id": schoolID}).
		OrderBy(core.DBOrdering{Field: "table_name", Ascending: true}.String()).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	states := make([]mirror.SyncState, 0)
	if err = store.db.SelectContext(ctx, &states, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying sync states")
	}
	return states, nil
}

// quote keeps mixed-case names ("classAssignments") and keywords ("timestamp") usable on both engines.
func quote(name string) string {
	return `"` + name + `"`
}
