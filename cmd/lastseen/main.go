package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/lastseen/api"
	"github.com/LdDl/lastseen/capture"
	"github.com/LdDl/lastseen/config"
	"github.com/LdDl/lastseen/detect"
	"github.com/LdDl/lastseen/driver"
	"github.com/LdDl/lastseen/mot"
	"github.com/LdDl/lastseen/storage"
)

const usage = `usage: lastseen <command> [flags]

commands:
  run     capture frames, track objects and record disappearances
  search  print records whose label contains the given term
  serve   serve search API over HTTP
  clear   delete all records and snapshots
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "search":
		err = searchCmd(ctx, os.Args[2:])
	case "serve":
		err = serveCmd(ctx, os.Args[2:])
	case "clear":
		err = clearCmd(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	configPath *string
	debug      *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, commonFlags{
		configPath: fs.String("config", "lastseen.toml", "Path to TOML config"),
		debug:      fs.Bool("debug", false, "Enable debug logging"),
	}
}

func (common commonFlags) setup() (config.Config, *slog.Logger, error) {
	level := slog.LevelInfo
	if *common.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	cfg, err := config.Load(*common.configPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg config.Config, logger *slog.Logger) (*storage.Store, error) {
	return storage.Open(cfg.Storage.DBPath, cfg.Storage.HistoryDir,
		storage.WithLogger(logger),
		storage.WithSnapshotMaxWidth(cfg.Storage.SnapshotMaxWidth),
		storage.WithJPEGQuality(cfg.Storage.JPEGQuality),
	)
}

func runCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("run")
	device := fs.String("device", "", "Video file or stream URL (overrides capture.device_id)")
	fs.Parse(args)
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var source driver.FrameSource
	if *device != "" {
		source, err = capture.OpenWebcam(*device)
	} else {
		source, err = capture.OpenWebcam(cfg.Capture.DeviceID)
	}
	if err != nil {
		return errors.Wrap(err, "can't open camera")
	}

	tracker := mot.NewLastSeenTracker(cfg.Tracking.ThresholdPixels, cfg.Tracking.FramesToDisappear, cfg.Tracking.Keywords, mot.WithLogger(logger))
	recorder := mot.NewRecorder(store, cfg.Storage.DeadLetterCapacity, logger)
	detector := detect.NewHTTPDetector(cfg.Detector.URL, cfg.Detector.Timeout.Duration, logger)
	frameDriver := driver.New(source, detector, tracker, recorder,
		driver.WithLogger(logger),
		driver.WithInterval(cfg.ProcessingInterval()),
		driver.WithStepHook(func(res mot.StepResult) {
			for i, object := range res.Live {
				logger.Debug("live object", "id", object.GetID().String(), "label", object.GetLabel(), "color", mot.OverlayColor(i), "unseen_frames", object.GetUnseenFrames())
			}
		}),
	)

	logger.Info("processing started", "fps", cfg.Capture.ProcessingFPS, "keywords", cfg.Tracking.Keywords)
	err = frameDriver.Run(ctx)
	stats := frameDriver.Stats()
	logger.Info("processing stopped",
		"frames_read", stats.Read,
		"frames_processed", stats.Processed,
		"frames_dropped", stats.Dropped,
		"source_errors", stats.SourceErrors,
		"persisted", stats.Persisted,
		"persist_failures", stats.PersistFails,
	)
	return err
}

func searchCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("search")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New("search term is required")
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	term := fs.Arg(0)
	records, err := store.Search(ctx, term)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("nothing found for '%s'\n", term)
		return nil
	}
	fmt.Printf("'%s': %d record(s)\n", term, len(records))
	for _, record := range records {
		fmt.Printf("  %s  %-20s  bbox=%s  image=%s\n", record.Timestamp, record.Label, record.BBoxCoords, record.ImagePath)
	}
	return nil
}

func serveCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("serve")
	listen := fs.String("listen", "", "Listen address (overrides server.listen)")
	fs.Parse(args)
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.NewRouter(store, store.HistoryDir(), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	logger.Info("search API listening", "addr", cfg.Server.Listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

func clearCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("clear")
	yes := fs.Bool("yes", false, "Confirm deletion of all records and snapshots")
	fs.Parse(args)
	if !*yes {
		return errors.New("refusing to clear history without -yes")
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	deleted, err := store.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d record(s)\n", deleted)
	return nil
}
