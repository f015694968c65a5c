package l2p

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/l2p-scope/pkg/logging"
)

// ClientConfig holds every tunable of the live feed client. The zero
// value of each optional field selects the protocol default.
type ClientConfig struct {
	// Host is the feed server name or address
	Host string

	// Port is the feed server TCP port
	Port int

	// Handshake is the poll request sent before every read
	// (default DefaultHandshake)
	Handshake []byte

	// ReadSize is the read buffer size in bytes (default DefaultReadSize)
	ReadSize int

	// FailurePause is the wait between a transport failure and its
	// announcement (default DefaultFailurePause)
	FailurePause time.Duration

	// Buffer is the payload channel capacity (default DefaultChannelBuffer)
	Buffer int

	// PollsPerSecond caps the handshake/read cycle rate. Zero or negative
	// means unlimited, which matches the historical behavior of letting
	// the server's read pacing drive the loop.
	PollsPerSecond float64
}

// withDefaults fills unset fields with the protocol defaults.
func (cfg ClientConfig) withDefaults() ClientConfig {
	if len(cfg.Handshake) == 0 {
		cfg.Handshake = []byte(DefaultHandshake)
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	if cfg.FailurePause <= 0 {
		cfg.FailurePause = DefaultFailurePause
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultChannelBuffer
	}
	return cfg
}

// Client is the live feed source: a TCP connection polled by a worker
// goroutine that forwards raw payloads on a channel.
//
// The worker runs the protocol's request/response cycle: send the
// handshake, read at most one buffer, forward it. On any send or read
// error it pauses, announces the failure as a Payload with Err set, and
// exits; it never redials. Reconnecting is the consumer's decision, made
// through Reset.
//
// The connection deliberately carries no read or send deadline. A feed
// server that stops answering without closing parks the worker forever;
// Close and Reset unblock it by closing the socket. This mirrors the
// station's historical client, where the operator is the timeout.
type Client struct {
	cfg     ClientConfig
	log     *logging.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	conn     net.Conn
	payloads chan Payload
	cancel   context.CancelFunc
	closed   bool
}

// NewClient dials the feed server and starts the transport worker.
// A dial failure here is a hard error: the address is wrong or the
// station is unreachable, and the caller should not start at all.
func NewClient(cfg ClientConfig, log *logging.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Host == "" {
		return nil, fmt.Errorf("feed client: host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("feed client: port %d is invalid", cfg.Port)
	}

	limit := rate.Inf
	if cfg.PollsPerSecond > 0 {
		limit = rate.Limit(cfg.PollsPerSecond)
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(limit, 1),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// connect dials the server and starts a fresh worker with a fresh
// payload channel. Callers hold c.mu or are the constructor.
func (c *Client) connect() error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to feed %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Payload, c.cfg.Buffer)

	c.conn = conn
	c.payloads = ch
	c.cancel = cancel

	go c.readLoop(ctx, conn, ch)

	c.log.Infof("feed connected to %s", addr)
	return nil
}

// readLoop is the transport worker.
func (c *Client) readLoop(ctx context.Context, conn net.Conn, out chan<- Payload) {
	buf := make([]byte, c.cfg.ReadSize)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		if _, err := conn.Write(c.cfg.Handshake); err != nil {
			c.announceFailure(ctx, out, fmt.Errorf("sending handshake: %w", err))
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case out <- Payload{Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			c.announceFailure(ctx, out, fmt.Errorf("reading feed: %w", err))
			return
		}
	}
}

// announceFailure pauses, then pushes the failure payload. The pause
// keeps a flapping server from driving a tight reconnect spin. A worker
// whose context was canceled says nothing; its connection was torn down
// on purpose.
func (c *Client) announceFailure(ctx context.Context, out chan<- Payload, err error) {
	if ctx.Err() != nil {
		return
	}
	c.log.Warnf("feed transport failed: %v", err)

	select {
	case <-time.After(c.cfg.FailurePause):
	case <-ctx.Done():
		return
	}

	select {
	case out <- Payload{Err: err}:
	case <-ctx.Done():
	}
}

// Poll blocks, bounded by ctx, for the first available payload, then
// drains whatever else the worker has queued without blocking.
func (c *Client) Poll(ctx context.Context) ([]Payload, error) {
	c.mu.Lock()
	ch := c.payloads
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	var out []Payload
	select {
	case p := <-ch:
		out = append(out, p)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case p := <-ch:
			out = append(out, p)
		default:
			return out, nil
		}
	}
}

// Reset tears down the current connection and worker and dials fresh.
// Payloads queued by the old worker are discarded with it; after a
// transport failure they are fragments with nothing after them. A dial
// error here is transient, and callers retry on their own schedule.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.teardown()
	return c.connect()
}

// Close shuts down the worker and connection. Closing the socket is what
// unblocks a worker parked in a deadline-free read.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.teardown()
	return nil
}

// teardown cancels the worker and closes the socket. Callers hold c.mu.
func (c *Client) teardown() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
