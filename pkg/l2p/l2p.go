// Package l2p speaks the listen2planes station feed protocol.
//
// The feed server multiplexes ADS-B aircraft positions and telescope
// pointing status over a single plaintext TCP stream of whitespace
// separated ASCII lines. A client repeatedly sends a short handshake and
// reads back a small chunk of the stream; record boundaries are plain
// newlines and record types are distinguished purely by token count.
//
// This package provides the record types and line classifier, a live TCP
// client, a file replay source for recorded feeds, and a recorder for
// producing those files.
package l2p

import (
	"context"
	"errors"
	"time"
)

// Protocol defaults. The server expects the handshake before every read
// and answers with at most one read buffer of data.
const (
	// DefaultHandshake is the poll request the server expects, a fixed
	// 7-byte token including the trailing NUL.
	DefaultHandshake = "reader\x00"

	// DefaultReadSize is the read buffer size in bytes.
	DefaultReadSize = 256

	// DefaultFailurePause is how long a transport worker waits after a
	// send/read failure before announcing it and exiting.
	DefaultFailurePause = 1500 * time.Millisecond

	// DefaultChannelBuffer is the payload channel capacity.
	DefaultChannelBuffer = 256

	// DefaultLinesPerCall is how many recorded lines a replay source
	// returns per poll.
	DefaultLinesPerCall = 140

	// MaxCarry bounds the partial-line carry a payload splitter holds
	// between reads. Anything longer than this is not a feed line.
	MaxCarry = 4096
)

var (
	// ErrUnknownShape reports a line whose token count matches no record
	// type. Such lines are dropped without further logging.
	ErrUnknownShape = errors.New("l2p: line shape not recognized")

	// ErrEndOfFeed reports that a replay source has returned everything
	// in its file. It is a graceful stop, not a transport failure.
	ErrEndOfFeed = errors.New("l2p: end of recorded feed")

	// ErrClosed reports use of a source after Close.
	ErrClosed = errors.New("l2p: source is closed")
)

// Payload is one unit of data handed from a feed source to its consumer.
// Exactly one of Data or Err is set: Data carries raw feed bytes, Err
// reports a transport failure in-stream so the consumer sees it in order
// with the data that preceded it.
type Payload struct {
	Data []byte
	Err  error
}

// Failed reports whether this payload announces a transport failure.
func (p Payload) Failed() bool {
	return p.Err != nil
}

// Source produces feed payloads for an ingestion loop. Implementations
// are not safe for concurrent use; the ingestion loop owns its source.
type Source interface {
	// Poll returns the payloads available since the last call. It blocks,
	// bounded by ctx, until at least one payload is available, then takes
	// whatever else is ready without blocking. A replay source returns
	// ErrEndOfFeed once its file is exhausted.
	Poll(ctx context.Context) ([]Payload, error)

	// Reset tears down and rebuilds the underlying transport after a
	// failure. Pending payloads from the old transport are discarded.
	Reset(ctx context.Context) error

	// Close releases the source. Any blocked Poll is unblocked.
	Close() error
}
