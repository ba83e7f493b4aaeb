package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
	"github.com/trezcool/edurise/fs"
	"github.com/trezcool/edurise/services/logger"
)

const (
	PolicyVersioned   = "versioned"
	PolicyDestructive = "destructive"
)

var gooseUpFunc = goose.UpContext // mockable

// MigrationPolicy brings the cache schema from its current version to the latest one.
type MigrationPolicy interface {
	Name() string
	Migrate(ctx context.Context, db *sqlx.DB) error
}

func NewMigrationPolicy(name string, logger core.Logger) (MigrationPolicy, error) {
	v := versioned{logger: logger}
	switch name {
	case "", PolicyVersioned:
		return v, nil
	case PolicyDestructive:
		return destructive{versioned: v}, nil
	}
	return nil, errors.Errorf("unknown migration policy %q", name)
}

// SetupGoose points goose at the embedded migrations for the db's engine.
func SetupGoose(db *sqlx.DB, logger core.Logger) error {
	goose.SetBaseFS(appfs.FS)
	goose.SetLogger(logsvc.GooseLogger{Logger: logger})
	if err := goose.SetDialect(db.DriverName()); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	return nil
}

// versioned applies the pending goose migrations. Existing rows are kept.
type versioned struct {
	logger core.Logger
}

func (p versioned) Name() string { return PolicyVersioned }

func (p versioned) Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := SetupGoose(db, p.logger); err != nil {
		return err
	}
	from, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return errors.Wrap(err, "reading schema version")
	}
	if err = gooseUpFunc(ctx, db.DB, appfs.MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	to, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return errors.Wrap(err, "reading schema version")
	}
	if from != to {
		p.logger.Info("cache schema migrated", map[string]interface{}{"from": from, "to": to})
	}
	return nil
}

// destructive drops every cache table then rebuilds the schema whenever the stored version is behind
// the embedded migrations: the cache is refilled by the next sync. An up to date schema is left alone.
type destructive struct {
	versioned
}

func (p destructive) Name() string { return PolicyDestructive }

func (p destructive) Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := SetupGoose(db, p.logger); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return errors.Wrap(err, "reading schema version")
	}
	latest, err := latestVersion()
	if err != nil {
		return err
	}
	if current >= latest {
		return nil
	}

	if err = dropAll(ctx, db); err != nil {
		return err
	}
	p.logger.Warn("cache tables dropped", map[string]interface{}{"from": current, "to": latest})
	return p.versioned.Migrate(ctx, db)
}

func latestVersion() (int64, error) {
	migrations, err := goose.CollectMigrations(appfs.MigrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return 0, errors.Wrap(err, "collecting migrations")
	}
	last, err := migrations.Last()
	if err != nil {
		return 0, errors.Wrap(err, "collecting migrations")
	}
	return last.Version, nil
}

func dropAll(ctx context.Context, db *sqlx.DB) error {
	names := []string{"sync_state"}
	for i := len(mirror.Tables) - 1; i >= 0; i-- { // children first
		names = append(names, mirror.Tables[i].Name)
	}
	names = append(names, goose.TableName())

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range names {
		if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return errors.Wrapf(err, "dropping %s", name)
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
