// Command enforcerd is the daemon entrypoint: it loads configuration,
// wires the store, HSM backend, key factory and scheduler together, then
// runs until it receives SIGINT/SIGTERM. Grounded on the teacher's
// music/main_initfuncs.go init-and-wire sequencing.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johanix/keyenforcer/internal/config"
	"github.com/johanix/keyenforcer/internal/hsm"
	"github.com/johanix/keyenforcer/internal/hsm/mockhsm"
	"github.com/johanix/keyenforcer/internal/keyfactory"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/scheduler"
	"github.com/johanix/keyenforcer/internal/store"
	"github.com/johanix/keyenforcer/internal/store/pgstore"
	"github.com/johanix/keyenforcer/internal/store/sqlitestore"
	"github.com/johanix/keyenforcer/internal/zoneupdate"
)

func main() {
	configPath := flag.String("config", "", "path to enforcer configuration file")
	flag.Parse()

	logger := log.New(os.Stderr, "enforcerd: ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer db.Close()

	backend, err := openHSM(cfg.HSM)
	if err != nil {
		logger.Fatalf("hsm: %v", err)
	}

	factory, err := keyfactory.New(ctx, db, backend)
	if err != nil {
		logger.Fatalf("keyfactory: %v", err)
	}

	run := func(ctx context.Context, zone model.ID) (time.Time, error) {
		return zoneupdate.Update(ctx, db, factory, backend, zone, time.Now())
	}
	sched := scheduler.New(run, cfg.Scheduler.Workers, logger)

	if err := scheduleAllZones(ctx, db, sched); err != nil {
		logger.Fatalf("initial schedule: %v", err)
	}

	sched.Start(ctx)
	logger.Printf("enforcerd started, %d workers", cfg.Scheduler.Workers)

	<-ctx.Done()
	logger.Printf("shutting down")
	sched.Stop()
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *log.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlitestore.Open(ctx, cfg.DSN, logger)
	case "postgres":
		return pgstore.Open(ctx, cfg.DSN, logger)
	default:
		return nil, errUnknownBackend(cfg.Backend)
	}
}

func openHSM(cfg config.HSMConfig) (hsm.Backend, error) {
	switch cfg.Backend {
	case "mock":
		return mockhsm.New(cfg.Repositories...), nil
	default:
		return nil, errUnknownBackend(cfg.Backend)
	}
}

func scheduleAllZones(ctx context.Context, db store.Store, sched *scheduler.Scheduler) error {
	it, err := db.Read(ctx, store.TableZone, nil, store.IsNotNull("id"), nil)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		id, _ := it.Row()["id"].AsText()
		sched.Schedule(model.ID(id), time.Now())
	}
	return it.Err()
}

type unknownBackendError string

func (e unknownBackendError) Error() string { return "unknown backend: " + string(e) }

func errUnknownBackend(name string) error { return unknownBackendError(name) }
