// Package ingest runs the feed ingestion loop: it polls a feed source,
// reassembles and classifies lines, routes aircraft positions into the
// track store and telescope reports into the latest-status slot, and
// handles the feed's failure signals by rebuilding the transport.
package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unklstewy/l2p-scope/pkg/l2p"
	"github.com/unklstewy/l2p-scope/pkg/logging"
	"github.com/unklstewy/l2p-scope/pkg/tracking"
)

// State is the supervisor's lifecycle phase.
type State int32

const (
	// StateRunning means payloads are flowing and being routed
	StateRunning State = iota

	// StateReconnecting means a failure signal arrived and the transport
	// is being rebuilt
	StateReconnecting

	// StateStopped means the loop has exited: the context was canceled,
	// Stop was called, or a replay source ran out of feed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the supervisor tunables.
type Config struct {
	// ReconnectPause is the wait before rebuilding the transport after a
	// failure signal (default 2s, the pause the feed server expects)
	ReconnectPause time.Duration

	// PollTimeout bounds how long one cycle waits for its first payload
	// before going around empty-handed (default 1s)
	PollTimeout time.Duration

	// CyclePause is an optional pause between poll cycles. Replay runs
	// use it to approximate live arrival cadence; live runs leave it
	// zero, where the poll timeout already paces quiet periods.
	CyclePause time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.ReconnectPause <= 0 {
		cfg.ReconnectPause = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return cfg
}

// Stats counts what the ingestion loop has seen and done.
type Stats struct {
	// Cycles is the number of poll cycles completed
	Cycles uint64 `json:"cycles"`

	// Payloads is the number of data payloads received
	Payloads uint64 `json:"payloads"`

	// Lines is the number of complete lines reassembled
	Lines uint64 `json:"lines"`

	// Positions is the number of aircraft position records routed
	Positions uint64 `json:"positions"`

	// TelescopeUpdates is the number of telescope status records routed
	TelescopeUpdates uint64 `json:"telescope_updates"`

	// UnknownLines is the number of lines dropped for an unrecognized
	// token count
	UnknownLines uint64 `json:"unknown_lines"`

	// MalformedRecords is the number of recognized shapes rejected for
	// bad numeric fields
	MalformedRecords uint64 `json:"malformed_records"`

	// Sentinels is the number of in-stream control sentinels seen
	Sentinels uint64 `json:"sentinels"`

	// TransportFailures is the number of out-of-band failure payloads
	TransportFailures uint64 `json:"transport_failures"`

	// Reconnects is the number of successful transport rebuilds
	Reconnects uint64 `json:"reconnects"`

	// Tracking is the track store's own accounting
	Tracking tracking.Stats `json:"tracking"`
}

// Supervisor owns one feed source and one track store and moves data
// between them until stopped.
type Supervisor struct {
	cfg   Config
	src   l2p.Source
	store *tracking.Store
	log   *logging.Logger
	rec   io.Writer

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	stats     Stats
	telescope l2p.TelescopeStatus
}

// NewSupervisor wires a source to a store. The telescope status starts
// as the feed's parked default: azimuth and elevation zero, valid.
func NewSupervisor(cfg Config, src l2p.Source, store *tracking.Store, log *logging.Logger) *Supervisor {
	s := &Supervisor{
		cfg:       cfg.withDefaults(),
		src:       src,
		store:     store,
		log:       log,
		telescope: l2p.TelescopeStatus{Valid: true},
	}
	s.state.Store(int32(StateStopped))
	return s
}

// Record tees every received data payload into w, typically a
// l2p.Recorder. Call before Start.
func (s *Supervisor) Record(w io.Writer) {
	s.rec = w
}

// Start launches the ingestion loop. It returns immediately; Done is
// closed when the loop exits.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// Stop cancels the loop, closes the source to unblock any parked read,
// and waits for the loop to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.src.Close()
	if s.done != nil {
		<-s.done
	}
}

// Done is closed when the ingestion loop exits, whether by Stop, context
// cancellation, or a replay source running out of feed.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// State reports the current lifecycle phase.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Snapshot returns the current tracks.
func (s *Supervisor) Snapshot() []tracking.Track {
	return s.store.Snapshot()
}

// Tracks returns the live track count without copying samples.
func (s *Supervisor) Tracks() int {
	return s.store.Len()
}

// Track returns one track by aircraft ID.
func (s *Supervisor) Track(id string) (tracking.Track, bool) {
	return s.store.Get(id)
}

// RequestReconnect asks a running loop to rebuild the transport before
// its next cycle. A stopped loop stays stopped.
func (s *Supervisor) RequestReconnect() {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateReconnecting))
}

// ClearTracks drops every track. The store's counters survive.
func (s *Supervisor) ClearTracks() {
	s.store.Clear()
}

// TelescopeStatus returns the latest mount report.
func (s *Supervisor) TelescopeStatus() l2p.TelescopeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telescope
}

// Stats returns a copy of the loop counters, including the store's.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()
	st.Tracking = s.store.Stats()
	return st
}

// run is the ingestion loop.
func (s *Supervisor) run(ctx context.Context) {
	s.state.Store(int32(StateRunning))
	defer s.state.Store(int32(StateStopped))

	var carry []byte

	for {
		if ctx.Err() != nil {
			return
		}

		if s.State() == StateReconnecting {
			err := s.reconnect(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, l2p.ErrClosed) {
				return
			}
			if err != nil {
				continue
			}
			// A torn line must not bridge two connections.
			carry = nil
			s.state.Store(int32(StateRunning))
		}

		pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		payloads, err := s.src.Poll(pollCtx)
		cancel()

		broken := false
		switch {
		case err == nil:
		case errors.Is(err, l2p.ErrEndOfFeed):
			s.log.Infof("feed replay complete")
			return
		case errors.Is(err, context.DeadlineExceeded):
			// Quiet cycle; nothing arrived within the poll window.
		case errors.Is(err, context.Canceled), errors.Is(err, l2p.ErrClosed):
			return
		default:
			s.log.Warnf("feed poll failed: %v", err)
			broken = true
		}

		batch := s.route(payloads, &carry, &broken)
		s.store.ApplyBatch(batch)

		s.mu.Lock()
		s.stats.Cycles++
		s.mu.Unlock()

		if broken {
			s.state.Store(int32(StateReconnecting))
		}

		if s.cfg.CyclePause > 0 {
			select {
			case <-time.After(s.cfg.CyclePause):
			case <-ctx.Done():
				return
			}
		}
	}
}

// route splits payloads into lines, classifies them, and routes each
// record. Positions are returned as the cycle's batch; positions that
// arrived before a failure signal still count, so the batch is built
// even when the cycle ends broken.
func (s *Supervisor) route(payloads []l2p.Payload, carry *[]byte, broken *bool) []l2p.PositionRecord {
	var batch []l2p.PositionRecord

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range payloads {
		if p.Failed() {
			s.stats.TransportFailures++
			s.log.Warnf("feed transport failure: %v", p.Err)
			*broken = true
			continue
		}

		s.stats.Payloads++
		if s.rec != nil {
			if _, err := s.rec.Write(p.Data); err != nil {
				s.log.Warnf("feed recording failed: %v", err)
			}
		}

		var lines [][]byte
		lines, *carry = l2p.SplitPayload(*carry, p.Data)
		for _, line := range lines {
			s.stats.Lines++

			rec, err := l2p.ParseLine(line)
			if err != nil {
				if errors.Is(err, l2p.ErrUnknownShape) {
					s.stats.UnknownLines++
					continue
				}
				s.stats.MalformedRecords++
				s.log.Warnf("malformed feed record: %v", err)
				continue
			}

			switch r := rec.(type) {
			case l2p.PositionRecord:
				s.stats.Positions++
				batch = append(batch, r)
			case l2p.TelescopeStatus:
				s.stats.TelescopeUpdates++
				s.telescope = r
			case l2p.ControlSentinel:
				s.stats.Sentinels++
				s.log.Infof("feed control sentinel: %s %s", r.Tokens[0], r.Tokens[1])
				*broken = true
			}
		}
	}

	return batch
}

// reconnect pauses, then rebuilds the transport. The pause comes first:
// the server wants breathing room after a drop, and hammering it with
// immediate redials keeps the link flapping.
func (s *Supervisor) reconnect(ctx context.Context) error {
	select {
	case <-time.After(s.cfg.ReconnectPause):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.src.Reset(ctx); err != nil {
		if !errors.Is(err, l2p.ErrClosed) && !errors.Is(err, context.Canceled) {
			s.log.Warnf("feed reconnect failed: %v", err)
		}
		return err
	}

	s.mu.Lock()
	s.stats.Reconnects++
	s.mu.Unlock()

	s.log.Infof("feed transport rebuilt")
	return nil
}
