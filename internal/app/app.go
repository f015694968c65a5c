// Package app assembles the feed engine from its configuration. Every
// binary builds the same source/store/supervisor stack; only the
// surface around it differs.
package app

import (
	"github.com/unklstewy/l2p-scope/pkg/config"
	"github.com/unklstewy/l2p-scope/pkg/ingest"
	"github.com/unklstewy/l2p-scope/pkg/l2p"
	"github.com/unklstewy/l2p-scope/pkg/logging"
	"github.com/unklstewy/l2p-scope/pkg/tracking"
)

// BuildSource returns the configured feed source: a recorded-file
// replay when one is set, the live TCP client otherwise.
func BuildSource(cfg *config.Config, log *logging.Logger) (l2p.Source, error) {
	if cfg.Replay.File != "" {
		return l2p.NewReplay(l2p.ReplayConfig{
			Path:         cfg.Replay.File,
			LinesPerCall: cfg.Replay.LinesPerCall,
		}, log)
	}
	return l2p.NewClient(l2p.ClientConfig{
		Host:           cfg.Feed.Host,
		Port:           cfg.Feed.Port,
		Handshake:      []byte(cfg.Feed.Handshake),
		ReadSize:       cfg.Feed.ReadSizeBytes,
		FailurePause:   cfg.Feed.FailurePause(),
		PollsPerSecond: cfg.Feed.PollsPerSecond,
	}, log)
}

// BuildSupervisor wires source, store, and supervisor per the config.
// When recordPath is non-empty every received payload is also appended
// there; the returned Recorder is nil otherwise and the caller closes
// it on shutdown.
func BuildSupervisor(cfg *config.Config, log *logging.Logger, recordPath string) (*ingest.Supervisor, *l2p.Recorder, error) {
	src, err := BuildSource(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	store := tracking.NewStore(tracking.Config{
		MinElevation:  cfg.Tracks.MinElevationDeg,
		MaxAge:        cfg.Tracks.MaxAgeSeconds,
		EpochRollover: cfg.Tracks.EpochRolloverSeconds,
		GapThreshold:  cfg.Tracks.GapThresholdSeconds,
	}, log)

	supCfg := ingest.Config{
		ReconnectPause: cfg.Feed.ReconnectPause(),
		PollTimeout:    cfg.Feed.PollTimeout(),
	}
	// A recording plays back at the configured cadence instead of as
	// fast as the file can be read.
	if cfg.Replay.File != "" {
		supCfg.CyclePause = cfg.Replay.Interval()
	}

	sup := ingest.NewSupervisor(supCfg, src, store, log)

	var rec *l2p.Recorder
	if recordPath != "" {
		rec, err = l2p.NewRecorder(recordPath)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		sup.Record(rec)
	}

	return sup, rec, nil
}
