package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/l2p-scope/internal/app"
	"github.com/unklstewy/l2p-scope/pkg/config"
	"github.com/unklstewy/l2p-scope/pkg/logging"
)

// record-feed connects to the listen2planes server and appends every
// raw payload to a dump file that the replay sources can read back.
// It runs headless, so a station can archive traffic overnight and
// examine interesting passes later.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	output := flag.String("output", "", "Dump file to append to (default feed-<timestamp>.rec)")
	replayFile := flag.String("replay", "", "Re-record from an existing dump instead of the live server")
	printLines := flag.Bool("print-lines", false, "Also print received payloads to stdout")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *replayFile != "" {
		cfg.Replay.File = *replayFile
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		Path:   cfg.Logging.File,
		Level:  cfg.Logging.Level,
		Stderr: true,
	})

	dumpPath := *output
	if dumpPath == "" {
		dumpPath = fmt.Sprintf("feed-%s.rec", time.Now().Format("20060102-150405"))
	}

	log.Infof("===========================================")
	log.Infof("  l2p-scope Feed Recorder")
	log.Infof("===========================================")
	log.Infof("Configuration loaded from: %s", *configPath)
	log.Infof("Station: %s at %.4f, %.4f, %.0fm",
		cfg.Station.Name, cfg.Station.Latitude, cfg.Station.Longitude, cfg.Station.HeightM)
	if cfg.Replay.File != "" {
		log.Infof("Source: recorded feed %s", cfg.Replay.File)
	} else {
		log.Infof("Source: %s:%d", cfg.Feed.Host, cfg.Feed.Port)
	}
	log.Infof("Dump file: %s", dumpPath)

	// Wire the feed engine with the recording tee
	sup, rec, err := app.BuildSupervisor(cfg, log, dumpPath)
	if err != nil {
		log.Errorf("Failed to build feed engine: %v", err)
		os.Exit(1)
	}
	if *printLines {
		sup.Record(io.MultiWriter(rec, os.Stdout))
	}
	log.Infof("✓ Feed engine ready")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	log.Infof("===========================================")
	log.Infof("  Recorder started")
	log.Infof("  Press Ctrl+C to stop")
	log.Infof("===========================================")

	// Stats ticker (every 30 seconds)
	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	running := true
	for running {
		select {
		case sig := <-sigChan:
			log.Infof("Received signal: %v", sig)
			running = false
		case <-sup.Done():
			log.Infof("Feed source finished")
			running = false
		case <-statsTicker.C:
			stats := sup.Stats()
			log.Infof("📊 Stats: %d lines, %d positions, %d telescope updates, %d tracks live | %d bytes dumped",
				stats.Lines, stats.Positions, stats.TelescopeUpdates, sup.Tracks(), rec.BytesWritten())
		}
	}

	log.Infof("Shutting down gracefully...")
	sup.Stop()
	if err := rec.Close(); err != nil {
		log.Errorf("Failed to close dump file: %v", err)
	}

	stats := sup.Stats()
	log.Infof("✓ Recorder stopped: %d lines, %d positions, %d bytes in %s",
		stats.Lines, stats.Positions, rec.BytesWritten(), dumpPath)
}
