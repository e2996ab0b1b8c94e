package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mimelyc/subtrans/internal/bus"
	"github.com/mimelyc/subtrans/internal/config"
	"github.com/mimelyc/subtrans/internal/httpapi"
	"github.com/mimelyc/subtrans/internal/mediatoolbox"
	"github.com/mimelyc/subtrans/internal/nfo"
	"github.com/mimelyc/subtrans/internal/pipeline"
	"github.com/mimelyc/subtrans/internal/skip"
	"github.com/mimelyc/subtrans/internal/store"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/mimelyc/subtrans/internal/termmap"
	"github.com/mimelyc/subtrans/internal/watcher"
	"github.com/mimelyc/subtrans/pkg/log"
)

func main() {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("loading configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration: %v", err)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatal("opening store: %v", err)
	}
	defer sqlStore.Close()

	initial := config.DefaultSettings(cfg.Providers)
	if loaded, err := config.LoadRuntimeSettingsFile(cfg.SettingsFile); err == nil {
		initial = loaded
	}
	settingsStore, err := config.NewRuntimeSettingsStore(cfg.SettingsFile, initial)
	if err != nil {
		log.Fatal("initializing settings store: %v", err)
	}

	toolbox := mediatoolbox.NewFFToolbox(cfg.FfmpegBin, cfg.FfprobeBin, cfg.MkvmergeBin, cfg.MkvextractBin)
	progressBus := bus.New()

	scheduler := task.NewScheduler(settingsStore.Get().MaxConcurrentTasks, sqlStore, progressBus)

	oracle := &skip.Oracle{
		Tracks:  toolbox,
		History: sqlStore,
		Active:  scheduler,
	}

	translator := pipeline.New(pipeline.Deps{
		Toolbox:     toolbox,
		Settings:    settingsStore,
		History:     sqlStore,
		NFO:         nfo.NewLookup(),
		Terms:       termmap.NewLookup(),
		ScratchRoot: cfg.ScratchRoot,
	})

	watcherSupervisor := watcher.NewSupervisor(oracle, scheduler, outputSettingsSource{settingsStore}, cfg.ScanIntervalCron)

	records, err := sqlStore.LoadWatchers(context.Background())
	if err != nil {
		log.Error("loading watchers: %v", err)
	}

	httpServer := httpapi.NewServer(
		scheduler, oracle, sqlStore, watcherSupervisor, settingsStore, toolbox, progressBus,
		cfg.ScanIntervalCron,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := runWithComponents(
		ctx,
		cfg.HTTPAddr,
		schedulerRunner{scheduler: scheduler, exec: translator.Run},
		watcherRunner{supervisor: watcherSupervisor, records: toWatcherRecords(records)},
		httpServer,
	); err != nil {
		log.Fatal("server exited: %v", err)
	}
}

// outputSettingsSource adapts the runtime settings store to
// watcher.OutputSettingsSource without internal/watcher depending on
// internal/config.
type outputSettingsSource struct {
	settings *config.RuntimeSettingsStore
}

func (o outputSettingsSource) Get() skip.OutputSettings {
	s := o.settings.Get()
	return skip.OutputSettings{SubtitleOutputFormat: s.SubtitleOutputFormat, OverwriteMKV: s.OverwriteMKV}
}

func toWatcherRecords(records []*store.WatcherRecord) []watcher.Record {
	out := make([]watcher.Record, 0, len(records))
	for _, r := range records {
		out = append(out, watcher.Record{
			ID:               r.ID,
			Path:             r.Path,
			Enabled:          r.Enabled,
			TargetLanguage:   r.TargetLanguage,
			LLMProvider:      r.LLMProvider,
			ScanIntervalCron: r.ScanIntervalCron,
		})
	}
	return out
}

// runner is anything with an independent start/stop lifecycle that
// runWithComponents coordinates during shutdown.
type runner interface {
	Start()
	Stop()
}

type schedulerRunner struct {
	scheduler *task.Scheduler
	exec      task.Executor
}

func (r schedulerRunner) Start() { r.scheduler.Start(r.exec) }
func (r schedulerRunner) Stop()  { r.scheduler.Stop() }

type watcherRunner struct {
	supervisor *watcher.Supervisor
	records    []watcher.Record
}

func (w watcherRunner) Start() { w.supervisor.Start(context.Background(), w.records) }
func (w watcherRunner) Stop()  { w.supervisor.StopAll() }

// httpServer is the subset of httpapi.Server runWithComponents drives.
type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

const shutdownTimeout = 10 * time.Second

// runWithComponents starts scheduler, watchers and the HTTP server, then
// blocks until ctx is cancelled, tearing every component down in
// reverse order.
func runWithComponents(ctx context.Context, addr string, scheduler, watchers runner, httpSrv httpServer) error {
	scheduler.Start()
	watchers.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		scheduler.Stop()
		watchers.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := httpSrv.Shutdown(shutdownCtx)
	<-errCh

	watchers.Stop()
	scheduler.Stop()
	return err
}
