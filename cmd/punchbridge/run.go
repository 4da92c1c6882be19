package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/punchbridge/internal/cloud"
	"github.com/BrandonDHaskell/punchbridge/internal/config"
	"github.com/BrandonDHaskell/punchbridge/internal/db"
	"github.com/BrandonDHaskell/punchbridge/internal/device"
	"github.com/BrandonDHaskell/punchbridge/internal/health"
	"github.com/BrandonDHaskell/punchbridge/internal/httpapi"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/service"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store"
	sqlitestore "github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store/sqlite"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the listener, directory scheduler and sync worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if err := cfg.RequireDevice(); err != nil {
				return err
			}

			logger, closer := newLogger(cfg)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runAgent(ctx, cfg, logger)
		},
	}
}

func runAgent(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
	if err != nil {
		logger.Printf("FATAL: cannot open local queue at %s: %v", cfg.DBPath, err)
		return err
	}
	defer conn.Close()

	writer := db.NewWorker(conn)
	defer writer.Close()

	var (
		notify *store.Notifier
		wake   <-chan struct{}
	)
	if cfg.WakeOnAppend {
		notify = store.NewNotifier()
		wake = notify.C()
	}
	queue := sqlitestore.NewQueueStore(conn, writer, notify)
	directory := sqlitestore.NewDirectoryStore(conn, writer)
	if err := directory.Load(ctx); err != nil {
		return fmt.Errorf("load directory cache: %w", err)
	}

	remote, err := cloud.NewFirestore(ctx, cfg.ProjectID, cfg.CredentialsFile)
	if err != nil {
		return err
	}
	defer remote.Close()

	tracker := health.NewTracker(service.ComponentDevice, service.ComponentSync, service.ComponentDirectory)
	defer tracker.Shutdown()

	day := service.BusinessDay{BoundaryHour: cfg.DayBoundaryHour, Location: cfg.Location}

	directorySvc := service.NewDirectoryService(remote, directory, cfg.DirectoryCollection, logger, tracker)
	scheduler := service.NewDirectoryScheduler(directorySvc, day, logger,
		service.WithRefreshTimeout(cfg.DirectoryTimeout))

	syncer := service.NewSyncWorker(queue, directory, remote, service.SyncConfig{
		Collection:    cfg.AttendanceCollection,
		AgentID:       cfg.AgentID,
		BatchSize:     cfg.BatchSize,
		IdleInterval:  cfg.IdleInterval,
		ErrorBackoff:  cfg.ErrorBackoff,
		UpsertTimeout: cfg.UpsertTimeout,
		Day:           day,
		Polarity:      service.NewPunchPolarity(cfg.CheckInStatusCodes),
		Wake:          wake,
	}, logger, tracker)

	listener := service.NewDeviceListener(
		device.WSDialer{
			Path:         cfg.DevicePath,
			Location:     cfg.Location,
			PingInterval: cfg.DevicePingInterval,
			PingTimeout:  cfg.DeviceConnectTimeout,
		},
		queue,
		service.ListenerConfig{
			Addr:           cfg.DeviceAddr,
			Port:           cfg.DevicePort,
			ConnectTimeout: cfg.DeviceConnectTimeout,
			ReconnectDelay: cfg.DeviceReconnectDelay,
		},
		logger, tracker,
	)

	logger.Printf("agent %s starting (db=%s device=%s:%d tz=%s boundary=%02d:00)",
		cfg.AgentID, cfg.DBPath, cfg.DeviceAddr, cfg.DevicePort, cfg.Location, cfg.DayBoundaryHour)

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger:    logger,
			Addr:      cfg.HTTPAddr,
			AgentID:   cfg.AgentID,
			Queue:     queue,
			Directory: directory,
			Health:    tracker,
		})
		go func() {
			logger.Printf("status listening on %s", cfg.HTTPAddr)
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("status server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.GRPCAddr != "" {
		gs := health.NewGRPCServer(cfg.GRPCAddr, tracker, logger)
		go func() {
			if err := gs.Start(); err != nil {
				logger.Printf("grpc health server error: %v", err)
			}
		}()
		defer gs.Stop()
	}

	stopWorkers := startWorkers(ctx, listener, scheduler, syncer)
	defer stopWorkers()

	<-ctx.Done()
	logger.Printf("shutting down")
	return nil
}

type worker interface {
	Start(ctx context.Context)
	Stop()
}

// startWorkers starts the listener first so punches are captured while the
// startup directory refresh runs. The sync worker starts only once that
// refresh has returned. The returned func stops all three in reverse order.
func startWorkers(ctx context.Context, listener, scheduler, syncer worker) func() {
	listener.Start(ctx)
	scheduler.Start(ctx)
	syncer.Start(ctx)

	return func() {
		syncer.Stop()
		scheduler.Stop()
		listener.Stop()
	}
}
