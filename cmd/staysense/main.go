package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staysense/internal/api"
	"staysense/internal/config"
	"staysense/internal/engine"
	"staysense/internal/ingest"
	"staysense/internal/logging"
	"staysense/internal/signals"
	"staysense/internal/storage"
	"staysense/internal/telemetry"
	"staysense/internal/temporal"
	"staysense/internal/tuning"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Init("staysense")

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(context.Background()); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		err = serve(cfg, store)
	case "import-events", "import-reference":
		err = runImport(cmd, args, store)
	default:
		err = fmt.Errorf("unknown command %q (want serve, import-events or import-reference)", cmd)
	}
	if err != nil {
		store.Close()
		log.Fatal(err)
	}
}

func serve(cfg config.Config, store *storage.Store) error {
	profile, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		return err
	}
	if cfg.SignalCooldownHours > 0 {
		profile.Signals.CooldownHours = cfg.SignalCooldownHours
	}
	calendar, err := temporal.LoadCalendar(cfg.HolidaysPath)
	if err != nil {
		return err
	}

	eng := engine.New(store, profile, engine.Options{
		Region:   cfg.RegionBox,
		Location: cfg.Location,
		Calendar: calendar,
	})
	gate := &signals.Gate{
		Store:   store,
		Secret:  []byte(cfg.ServerSalt),
		Params:  profile.Signals,
		Metrics: telemetry.Default(),
	}
	handler := api.NewRouter(eng, gate, store, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Duration(cfg.RequestTimeoutSec+5) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", cfg.ServerAddr, "env", cfg.Env, "tuning", profile.Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runImport(cmd string, args []string, store *storage.Store) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	file := fs.String("file", "", "snapshot to import")
	source := fs.String("source", "", "source name recorded with the import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}
	if *source == "" {
		*source = defaultSource(cmd, *file)
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	ing := &ingest.Ingestor{Store: store}
	ctx := context.Background()
	var res ingest.Result
	if cmd == "import-events" {
		res, err = ing.ImportEventsCSV(ctx, f, *source, *file)
	} else {
		res, err = ing.ImportReferenceYAML(ctx, f, *source, *file)
	}
	if err != nil {
		return err
	}
	fmt.Printf("imported %d rows into %s (%d skipped)\n", res.Rows, res.Source, res.Skipped)
	return nil
}

func defaultSource(cmd, file string) string {
	if cmd == "import-events" {
		return "open_data_events:" + file
	}
	return "osm"
}
