package l2p

import (
	"fmt"
	"os"
	"sync"
)

// Recorder appends raw feed payloads to a dump file that a Replay can
// later read back. It records the stream exactly as received, torn lines
// and all, so a replayed session exercises the same splitting and
// classification paths the live session did.
type Recorder struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	written int64
}

// NewRecorder opens (or creates) the dump file for appending.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening feed dump: %w", err)
	}
	return &Recorder{f: f, path: path}, nil
}

// Write appends one payload's bytes to the dump. It implements io.Writer.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, ErrClosed
	}
	n, err := r.f.Write(p)
	r.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing feed dump: %w", err)
	}
	return n, nil
}

// Close flushes and closes the dump file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// Path reports where the dump is being written.
func (r *Recorder) Path() string {
	return r.path
}

// BytesWritten reports the total bytes appended so far.
func (r *Recorder) BytesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
