package main

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/trezcool/edurise/fs"
	"github.com/trezcool/edurise/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if err := database.SetupGoose(cli.db, cli.logger); err != nil {
		return err
	}
	return gooseRunFunc(ctx, args[0], cli.db.DB, appfs.MigrationsDir, args[1:]...)
}
