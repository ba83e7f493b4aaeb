package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/edurise/apps/api/di/dig"
	echoapi "github.com/trezcool/edurise/apps/api/echo"
	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
	"github.com/trezcool/edurise/services/scheduler"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		svc *mirror.Service,
		sched *scheduler.Scheduler,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		if err := svc.EnsureSchema(context.Background()); err != nil {
			dbLogger.Fatal(fmt.Sprintf("preparing cache schema: %v", err), err)
		}

		// =========================================================================
		// Start Scheduler & API Service

		if sched != nil {
			sched.Start()
		}
		server.Start()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			if sched != nil {
				select {
				case <-sched.Stop().Done():
				case <-ctx.Done():
					apiLogger.Warn("scheduled sync still running at shutdown")
				}
			}

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
