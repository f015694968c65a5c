package l2p

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/unklstewy/l2p-scope/pkg/logging"
)

// ReplayConfig holds the tunables of a recorded-feed source.
type ReplayConfig struct {
	// Path is the recorded feed file, as written by a Recorder
	Path string

	// LinesPerCall is the most lines one Poll returns
	// (default DefaultLinesPerCall)
	LinesPerCall int
}

// Replay reads a recorded feed file as if it were the live socket. Each
// Poll returns the next chunk of lines starting at the source's byte
// offset; the offset only ever advances past lines that were returned,
// so a caller that stops and polls again resumes exactly where it left
// off. At end of file Poll returns ErrEndOfFeed with no payloads and the
// offset stays put.
type Replay struct {
	cfg    ReplayConfig
	log    *logging.Logger
	f      *os.File
	offset int64
	closed bool
}

// NewReplay opens a recorded feed file for polling.
func NewReplay(cfg ReplayConfig, log *logging.Logger) (*Replay, error) {
	if cfg.LinesPerCall <= 0 {
		cfg.LinesPerCall = DefaultLinesPerCall
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening recorded feed: %w", err)
	}

	return &Replay{cfg: cfg, log: log, f: f}, nil
}

// Poll returns up to LinesPerCall lines as a single payload, the same
// shape a live read chunk arrives in, so the consumer's line splitting
// and classification treat replayed and live data identically.
func (r *Replay) Poll(ctx context.Context) ([]Payload, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := r.f.Seek(r.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking recorded feed: %w", err)
	}

	var (
		chunk    []byte
		consumed int
		rd       = bufio.NewReader(r.f)
	)
	for i := 0; i < r.cfg.LinesPerCall; i++ {
		line, err := rd.ReadBytes('\n')
		chunk = append(chunk, line...)
		consumed += len(line)
		if err == io.EOF {
			// A dump can end mid-write. Terminate the partial line so
			// the record it holds still parses; the offset advances only
			// by the bytes actually in the file.
			if n := len(line); n > 0 && line[n-1] != '\n' {
				chunk = append(chunk, '\n')
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading recorded feed: %w", err)
		}
	}

	if consumed == 0 {
		return nil, ErrEndOfFeed
	}

	r.offset += int64(consumed)
	return []Payload{{Data: chunk}}, nil
}

// Reset is a no-op for replay: there is no transport to rebuild, and a
// recorded sentinel should not make the replay lose its place.
func (r *Replay) Reset(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	r.log.Debugf("replay reset ignored at offset %d", r.offset)
	return nil
}

// Close releases the file.
func (r *Replay) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

// Offset reports the byte position the next Poll reads from.
func (r *Replay) Offset() int64 {
	return r.offset
}
