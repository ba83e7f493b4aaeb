package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/edurise/apps/api/echo"
	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
	logsvc "github.com/trezcool/edurise/services/logger"
	remotesvc "github.com/trezcool/edurise/services/remote"
	"github.com/trezcool/edurise/services/scheduler"
	"github.com/trezcool/edurise/storage/database"
	sqlxrepos "github.com/trezcool/edurise/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	SyncLoggerParam struct {
		dig.In
		Logger core.Logger `name:"syncLogger"`
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newSyncLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "SYNC : ", log.LstdFlags|log.Lmicroseconds)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		return database.Connect(ctx, conf)
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newMigrationPolicy(conf *core.Config, loggerParam DBLoggerParam) (database.MigrationPolicy, error) {
	return database.NewMigrationPolicy(conf.Database.MigrationPolicy, loggerParam.Logger)
}

func newStore(db *sqlx.DB, policy database.MigrationPolicy) mirror.Store {
	return sqlxrepos.NewCacheStore(db, policy)
}

func newFetcher(conf *core.Config) (mirror.Fetcher, error) {
	return remotesvc.New(context.Background(), conf)
}

func newMirrorService(conf *core.Config, store mirror.Store, remote mirror.Fetcher, loggerParam SyncLoggerParam) (*mirror.Service, error) {
	mappings, err := mirror.SelectMappings(conf.Mirror.Collections)
	if err != nil {
		return nil, errors.Wrap(err, "selecting mirrored collections")
	}
	return mirror.NewService(store, remote, loggerParam.Logger, mirror.Options{
		Mappings:    mappings,
		Concurrency: conf.Mirror.Concurrency,
		Timeout:     conf.Mirror.Timeout,
	}), nil
}

// newScheduler returns nil when no schedule is configured.
func newScheduler(conf *core.Config, svc *mirror.Service, remote mirror.Fetcher, loggerParam SyncLoggerParam) (*scheduler.Scheduler, error) {
	if conf.Mirror.Schedule == "" {
		return nil, nil
	}
	lister, _ := remote.(scheduler.SchoolLister)
	return scheduler.New(svc, lister, loggerParam.Logger, conf.Mirror.Schedule, conf.Mirror.Schools, conf.Mirror.Timeout)
}

func newServer(conf *core.Config, logger core.Logger, auth *echoapi.Auth, svc *mirror.Service) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:  conf.Address(),
		Debug:    conf.Debug,
		TestMode: conf.TestMode,
		Logger:   logger,
		Auth:     auth,
		Mirror:   svc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSyncLogger, dig.Name("syncLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newMigrationPolicy))
	must(c.Provide(newStore))
	must(c.Provide(newFetcher))
	must(c.Provide(newMirrorService))
	must(c.Provide(newScheduler))
	must(c.Provide(echoapi.NewAuth))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
