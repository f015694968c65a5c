package ingest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/l2p-scope/pkg/l2p"
	"github.com/unklstewy/l2p-scope/pkg/tracking"
)

// scriptedPoll is one canned Poll result.
type scriptedPoll struct {
	payloads []l2p.Payload
	err      error
}

// fakeSource plays back a script of poll results, then reports end of
// feed (or blocks like a quiet live feed when endless is set).
type fakeSource struct {
	mu      sync.Mutex
	script  []scriptedPoll
	next    int
	resets  int
	closed  bool
	endless bool
}

func (f *fakeSource) Poll(ctx context.Context) ([]l2p.Payload, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, l2p.ErrClosed
	}
	if f.next < len(f.script) {
		sp := f.script[f.next]
		f.next++
		f.mu.Unlock()
		return sp.payloads, sp.err
	}
	endless := f.endless
	f.mu.Unlock()

	if endless {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, l2p.ErrEndOfFeed
}

func (f *fakeSource) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return l2p.ErrClosed
	}
	f.resets++
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func data(s string) l2p.Payload {
	return l2p.Payload{Data: []byte(s)}
}

func testConfig() Config {
	return Config{ReconnectPause: time.Millisecond, PollTimeout: 10 * time.Millisecond}
}

func newTestStore() *tracking.Store {
	return tracking.NewStore(tracking.Config{MinElevation: 0, MaxAge: -1}, nil)
}

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Expected ingestion loop to finish within 5s")
	}
}

const (
	posLineA = "56395 40400.326 4ca626 RYR8JT 50.97158 -0.61729 29525 68.6683 280.17873692 7.16197030 -474.0 191.0 1088\n"
	posLineB = "56395 40401.000 406b52 BAW22 51.10000 -0.50000 36000 70.1000 275.00000000 9.50000000 -470.0 190.0 1090\n"
	telLine  = "56692 41847.094 telscp 75.00 65.00 1\n"
)

// TestSupervisorRoutesRecords tests the classify-and-route path end to
// end over one payload.
func TestSupervisorRoutesRecords(t *testing.T) {
	junk := "one two three\n"
	malformed := "56395 40400.326 4ca626 RYR8JT abc -0.61729 29525 68.6683 280.17 7.16 -474.0 191.0 1088\n"

	src := &fakeSource{script: []scriptedPoll{
		{payloads: []l2p.Payload{data(posLineA + posLineB + telLine + junk + malformed)}},
	}}
	store := newTestStore()
	sup := NewSupervisor(testConfig(), src, store, nil)

	sup.Start(context.Background())
	waitDone(t, sup)

	if got := sup.State(); got != StateStopped {
		t.Errorf("Expected state stopped, got %v", got)
	}
	if store.Len() != 2 {
		t.Errorf("Expected 2 tracks, got %d", store.Len())
	}

	tr, ok := store.Get("4ca626")
	if !ok {
		t.Fatal("Expected track 4ca626")
	}
	if tr.Callsign != "RYR8JT" {
		t.Errorf("Expected callsign RYR8JT, got %s", tr.Callsign)
	}

	ts := sup.TelescopeStatus()
	if ts.Azimuth != 75.0 || ts.Elevation != 65.0 || !ts.Valid {
		t.Errorf("Expected telescope 75/65 valid, got %+v", ts)
	}

	stats := sup.Stats()
	if stats.Lines != 5 {
		t.Errorf("Expected 5 lines, got %d", stats.Lines)
	}
	if stats.Positions != 2 {
		t.Errorf("Expected 2 positions, got %d", stats.Positions)
	}
	if stats.TelescopeUpdates != 1 {
		t.Errorf("Expected 1 telescope update, got %d", stats.TelescopeUpdates)
	}
	if stats.UnknownLines != 1 {
		t.Errorf("Expected 1 unknown line, got %d", stats.UnknownLines)
	}
	if stats.MalformedRecords != 1 {
		t.Errorf("Expected 1 malformed record, got %d", stats.MalformedRecords)
	}
	if stats.Tracking.Admitted != 2 {
		t.Errorf("Expected 2 admitted samples, got %d", stats.Tracking.Admitted)
	}
}

// TestSupervisorDefaultTelescope tests the parked default before any
// report arrives.
func TestSupervisorDefaultTelescope(t *testing.T) {
	sup := NewSupervisor(testConfig(), &fakeSource{}, newTestStore(), nil)

	ts := sup.TelescopeStatus()
	if ts.Azimuth != 0 || ts.Elevation != 0 {
		t.Errorf("Expected parked telescope at 0/0, got %f/%f", ts.Azimuth, ts.Elevation)
	}
	if !ts.Valid {
		t.Error("Expected parked telescope to be valid")
	}
}

// TestSupervisorSentinelReconnect tests that an in-stream sentinel
// rebuilds the transport without corrupting accumulated state.
func TestSupervisorSentinelReconnect(t *testing.T) {
	src := &fakeSource{script: []scriptedPoll{
		{payloads: []l2p.Payload{data(posLineA)}},
		{payloads: []l2p.Payload{data("CONN ERROR\n")}},
		{payloads: []l2p.Payload{data(posLineB)}},
	}}
	store := newTestStore()
	sup := NewSupervisor(testConfig(), src, store, nil)

	sup.Start(context.Background())
	waitDone(t, sup)

	if got := src.resetCount(); got != 1 {
		t.Errorf("Expected 1 transport rebuild, got %d", got)
	}
	if store.Len() != 2 {
		t.Errorf("Expected both tracks to survive the reconnect, got %d", store.Len())
	}
	if _, ok := store.Get("4ca626"); !ok {
		t.Error("Expected pre-reconnect track to survive")
	}
	if _, ok := store.Get("406b52"); !ok {
		t.Error("Expected post-reconnect track to be admitted")
	}

	stats := sup.Stats()
	if stats.Sentinels != 1 {
		t.Errorf("Expected 1 sentinel, got %d", stats.Sentinels)
	}
	if stats.Reconnects != 1 {
		t.Errorf("Expected 1 reconnect, got %d", stats.Reconnects)
	}
}

// TestSupervisorFailurePayloadReconnect tests the out-of-band failure
// path, including that positions received before the failure still land.
func TestSupervisorFailurePayloadReconnect(t *testing.T) {
	src := &fakeSource{script: []scriptedPoll{
		{payloads: []l2p.Payload{
			data(posLineA),
			{Err: errors.New("connection reset by peer")},
		}},
		{payloads: []l2p.Payload{data(posLineB)}},
	}}
	store := newTestStore()
	sup := NewSupervisor(testConfig(), src, store, nil)

	sup.Start(context.Background())
	waitDone(t, sup)

	if got := src.resetCount(); got != 1 {
		t.Errorf("Expected 1 transport rebuild, got %d", got)
	}
	if _, ok := store.Get("4ca626"); !ok {
		t.Error("Expected position before the failure to be applied")
	}
	if _, ok := store.Get("406b52"); !ok {
		t.Error("Expected position after the reconnect to be applied")
	}

	stats := sup.Stats()
	if stats.TransportFailures != 1 {
		t.Errorf("Expected 1 transport failure, got %d", stats.TransportFailures)
	}
	if stats.Reconnects != 1 {
		t.Errorf("Expected 1 reconnect, got %d", stats.Reconnects)
	}
}

// TestSupervisorCarryClearedOnReconnect tests that a torn line does not
// bridge two connections: the halves would otherwise join into one
// plausible record.
func TestSupervisorCarryClearedOnReconnect(t *testing.T) {
	firstHalf := "56395 40400.326 4ca626 RYR8JT 50.97158 -0.61729 29525"
	secondHalf := " 68.6683 280.17873692 7.16197030 -474.0 191.0 1088\n"

	src := &fakeSource{script: []scriptedPoll{
		{payloads: []l2p.Payload{
			data(firstHalf),
			{Err: errors.New("connection reset by peer")},
		}},
		{payloads: []l2p.Payload{data(secondHalf)}},
	}}
	store := newTestStore()
	sup := NewSupervisor(testConfig(), src, store, nil)

	sup.Start(context.Background())
	waitDone(t, sup)

	if store.Len() != 0 {
		t.Errorf("Expected no track from a line torn across connections, got %d", store.Len())
	}

	// The orphaned second half is six tokens whose first is not an
	// integer, so it shows up as a malformed record, not a position.
	stats := sup.Stats()
	if stats.MalformedRecords != 1 {
		t.Errorf("Expected 1 malformed record from the orphaned half, got %d", stats.MalformedRecords)
	}
	if stats.Positions != 0 {
		t.Errorf("Expected no positions, got %d", stats.Positions)
	}
}

// TestSupervisorEndOfFeed tests the graceful replay stop.
func TestSupervisorEndOfFeed(t *testing.T) {
	src := &fakeSource{}
	sup := NewSupervisor(testConfig(), src, newTestStore(), nil)

	sup.Start(context.Background())
	waitDone(t, sup)

	if got := sup.State(); got != StateStopped {
		t.Errorf("Expected state stopped, got %v", got)
	}
	if got := src.resetCount(); got != 0 {
		t.Errorf("Expected no rebuild on end of feed, got %d", got)
	}
}

// TestSupervisorStop tests shutdown of a loop parked on a quiet feed.
func TestSupervisorStop(t *testing.T) {
	src := &fakeSource{endless: true}
	sup := NewSupervisor(testConfig(), src, newTestStore(), nil)

	sup.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		sup.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected Stop to return within 5s")
	}
	if got := sup.State(); got != StateStopped {
		t.Errorf("Expected state stopped, got %v", got)
	}
}

// TestSupervisorRecord tests that data payloads are teed to the recorder
// exactly as received.
func TestSupervisorRecord(t *testing.T) {
	src := &fakeSource{script: []scriptedPoll{
		{payloads: []l2p.Payload{data(posLineA)}},
		{payloads: []l2p.Payload{data(telLine)}},
	}}
	var buf bytes.Buffer

	sup := NewSupervisor(testConfig(), src, newTestStore(), nil)
	sup.Record(&buf)

	sup.Start(context.Background())
	waitDone(t, sup)

	if got := buf.String(); got != posLineA+telLine {
		t.Errorf("Expected recorded stream to match received payloads, got %q", got)
	}
}

// TestStateString tests the lifecycle phase names.
func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateRunning, "running"},
		{StateReconnecting, "reconnecting"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

// TestSupervisorRequestReconnect tests that an external reconnect
// request rebuilds the transport without stopping the loop.
func TestSupervisorRequestReconnect(t *testing.T) {
	src := &fakeSource{endless: true}
	sup := NewSupervisor(testConfig(), src, newTestStore(), nil)

	sup.Start(context.Background())
	defer func() {
		sup.Stop()
		waitDone(t, sup)
	}()

	sup.RequestReconnect()

	deadline := time.After(5 * time.Second)
	for src.resetCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Expected a transport reset within 5s")
		case <-time.After(time.Millisecond):
		}
	}

	if got := sup.Stats().Reconnects; got != 1 {
		t.Errorf("Expected 1 reconnect, got %d", got)
	}
}

// TestSupervisorRequestReconnectWhileStopped tests that the request is
// ignored once the loop has exited.
func TestSupervisorRequestReconnectWhileStopped(t *testing.T) {
	src := &fakeSource{}
	sup := NewSupervisor(testConfig(), src, newTestStore(), nil)

	sup.RequestReconnect()

	if got := sup.State(); got != StateStopped {
		t.Errorf("Expected state stopped, got %s", got)
	}
	if got := src.resetCount(); got != 0 {
		t.Errorf("Expected no resets, got %d", got)
	}
}

// TestSupervisorTrackAccessors tests the by-ID lookup and clear.
func TestSupervisorTrackAccessors(t *testing.T) {
	src := &fakeSource{script: []scriptedPoll{
		{payloads: []l2p.Payload{data(posLineA)}},
	}}
	sup := NewSupervisor(testConfig(), src, newTestStore(), nil)

	sup.Start(context.Background())
	waitDone(t, sup)

	if got := sup.Tracks(); got != 1 {
		t.Fatalf("Expected 1 track, got %d", got)
	}
	tr, ok := sup.Track("4ca626")
	if !ok {
		t.Fatal("Expected track 4ca626 to exist")
	}
	if tr.Callsign != "RYR8JT" {
		t.Errorf("Expected callsign RYR8JT, got %s", tr.Callsign)
	}
	if _, ok := sup.Track("missing"); ok {
		t.Error("Expected missing track to report false")
	}

	sup.ClearTracks()
	if got := sup.Tracks(); got != 0 {
		t.Errorf("Expected empty store after clear, got %d tracks", got)
	}
}

// TestSupervisorCyclePause tests that replay pacing holds cycles apart.
func TestSupervisorCyclePause(t *testing.T) {
	src := &fakeSource{script: []scriptedPoll{
		{payloads: []l2p.Payload{data(posLineA)}},
		{payloads: []l2p.Payload{data(posLineB)}},
	}}
	cfg := testConfig()
	cfg.CyclePause = 20 * time.Millisecond

	sup := NewSupervisor(cfg, src, newTestStore(), nil)

	start := time.Now()
	sup.Start(context.Background())
	waitDone(t, sup)

	// Three cycles run before end of feed: two data polls and the EOF
	// poll, with a pause after each data cycle.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Expected at least 40ms of pacing, got %v", elapsed)
	}
	if got := sup.Tracks(); got != 2 {
		t.Errorf("Expected 2 tracks, got %d", got)
	}
}
