package main

import (
	"context"
	"log"
	"os"

	echoapi "github.com/trezcool/edurise/apps/api/echo"
	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
	logsvc "github.com/trezcool/edurise/services/logger"
	remotesvc "github.com/trezcool/edurise/services/remote"
	"github.com/trezcool/edurise/storage/database"
	sqlxrepos "github.com/trezcool/edurise/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds), conf)
	ctx := context.Background()

	// set up DB
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Connect(ctx, conf)
	errAndDie(err)
	defer db.Close()

	policy, err := database.NewMigrationPolicy(conf.Database.MigrationPolicy, logger)
	errAndDie(err)
	remote, err := remotesvc.New(ctx, conf)
	errAndDie(err)
	mappings, err := mirror.SelectMappings(conf.Mirror.Collections)
	errAndDie(err)

	svc := mirror.NewService(sqlxrepos.NewCacheStore(db, policy), remote, logger, mirror.Options{
		Mappings:    mappings,
		Concurrency: conf.Mirror.Concurrency,
		Timeout:     conf.Mirror.Timeout,
	})

	// start CLI
	cli := commandLine{
		db:     db,
		svc:    svc,
		auth:   echoapi.NewAuth(conf),
		logger: logger,
		out:    os.Stdout,
	}
	if len(os.Args) > 1 && os.Args[1] != "migrate" {
		errAndDie(svc.EnsureSchema(ctx))
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
