package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/opst/trackfab/cmd/trackd/sweeper"
	configs "github.com/opst/trackfab/pkg/configs/trackd"
	kpg "github.com/opst/trackfab/pkg/db/postgres"
	"github.com/opst/trackfab/pkg/loop"
	"github.com/opst/trackfab/pkg/loop/recurring"
	"github.com/opst/trackfab/pkg/utils/filewatch"
	"github.com/opst/trackfab/pkg/utils/try"
)

func main() {

	logger := log.Default()

	pconfig := flag.String(
		"config", os.Getenv("TRACKD_CONFIG"), "path to config file",
	)
	schemaRepo := flag.String("schema-repo", os.Getenv("TRACK_SCHEMA"), "schema repository path")
	loglevel := flag.String("loglevel", "warn", "log level. debug|info|warn|error|off")

	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	conf := try.To(configs.LoadTrackdConfig(*pconfig)).OrFatal(logger)
	staleRunTTL, sweepInterval, err := conf.SweepPolicy()
	if err != nil {
		logger.Fatal(err)
	}

	db := try.To(kpg.New(
		ctx, conf.DBURI, kpg.WithSchemaRepository(*schemaRepo),
	)).OrFatal(logger)
	{
		ctx_, ccan := db.Schema().Context(ctx)
		defer ccan()
		ctx = ctx_
	}
	{
		// quit when the config file is updated, to restart with the new config.
		ctx_, ccan, err := filewatch.UntilModifyContext(ctx, *pconfig)
		if err != nil {
			logger.Fatalf("can not watch configuration file %s: %s", *pconfig, err)
		}
		defer ccan()
		ctx = ctx_
	}

	server := BuildServer(conf, db, *loglevel)
	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", strings.ToUpper(r.Method), r.Path)
	}

	go func() {
		task := sweeper.Task(logger, db.Run(), staleRunTTL)
		if _, err := loop.Start(
			ctx, time.Now(), task.Applied(recurring.Forever(sweepInterval)),
		); err != nil {
			logger.Printf("sweeper stops with error: %s", err)
		}
	}()

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		err := server.Start(":" + conf.ServerPort)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done(): // wait
		if err := ctx.Err(); err != nil {
			server.Logger.Infof("context has been done: %s, cause: %s", err, context.Cause(ctx))
			exit = 1
		}
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	{
		server.Logger.Info("shutting down...")
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer qcancel()

		if err := server.Shutdown(qctx); err != nil {
			server.Logger.Fatalf("Shutdown with error. %+v", err)
		}
		os.Exit(exit)
	}
}
