package s7

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"go.uber.org/zap"
)

// Transport is one physical S7 connection to the DB area of the PLC.
type Transport interface {
	Connect() error
	Close() error
	ReadDB(db, start, size int, buf []byte) error
	WriteDB(db, start, size int, buf []byte) error
	WriteBit(db, bitAddress int, value bool) error
}

// Dialer builds an unconnected transport for the given endpoint.
type Dialer func(host string, localTSAP, remoteTSAP uint16, timeout time.Duration) Transport

type Options struct {
	DBNumber       int
	MaxChunk       int
	RetryDelay     time.Duration
	MaxRetries     int // 0 = unlimited
	ConnectTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		DBNumber:       1,
		MaxChunk:       1024,
		RetryDelay:     time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// Client serializes all operations on one logical PLC connection.
type Client struct {
	dial   Dialer
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	host       string
	localTSAP  uint16
	remoteTSAP uint16
	configured bool
	transport  Transport
	connected  bool
	lastErr    error
}

func NewClient(dial Dialer, opts Options, logger *zap.Logger) *Client {
	if opts.MaxChunk <= 0 {
		opts.MaxChunk = 1024
	}
	if opts.DBNumber <= 0 {
		opts.DBNumber = 1
	}
	return &Client{
		dial:   dial,
		opts:   opts,
		logger: logger,
	}
}

// Connect stellt die Verbindung her. Idempotent while connected to the same endpoint.
func (c *Client) Connect(ctx context.Context, host string, localTSAP, remoteTSAP uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if c.configured && (c.host != host || c.localTSAP != localTSAP || c.remoteTSAP != remoteTSAP) {
		c.disconnectLocked()
	}

	c.host = host
	c.localTSAP = localTSAP
	c.remoteTSAP = remoteTSAP
	c.configured = true

	if c.lastErr != nil {
		c.disconnectLocked()
	}

	return c.connectLocked()
}

// Disconnect schließt die Verbindung
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disconnectLocked()
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ReadArea reads length bytes of the DB starting at start, in chunks of at most MaxChunk.
// Any transport error restarts the whole read after a reconnect.
func (c *Client) ReadArea(ctx context.Context, start, length int) ([]byte, error) {
	if start < 0 || length <= 0 {
		return nil, fmt.Errorf("invalid read range start=%d length=%d", start, length)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, length)
	err := c.withRetry(ctx, "read", func(t Transport) error {
		for offset := 0; offset < length; {
			n := min(length-offset, c.opts.MaxChunk)
			if err := t.ReadDB(c.opts.DBNumber, start+offset, n, buf[offset:offset+n]); err != nil {
				return fmt.Errorf("read %d bytes at %d: %w", n, start+offset, err)
			}
			offset += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// WriteArea writes data as one byte-level transfer.
func (c *Client) WriteArea(ctx context.Context, start int, data []byte) error {
	if start < 0 || len(data) == 0 {
		return fmt.Errorf("invalid write range start=%d length=%d", start, len(data))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withRetry(ctx, "write", func(t Transport) error {
		if err := t.WriteDB(c.opts.DBNumber, start, len(data), data); err != nil {
			return fmt.Errorf("write %d bytes at %d: %w", len(data), start, err)
		}
		return nil
	})
}

// WriteBit sets a single bit. bitAddress = 8*byteAddress + bitIndex.
func (c *Client) WriteBit(ctx context.Context, bitAddress int, value bool) error {
	if bitAddress < 0 {
		return fmt.Errorf("invalid bit address %d", bitAddress)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withRetry(ctx, "write bit", func(t Transport) error {
		if err := t.WriteBit(c.opts.DBNumber, bitAddress, value); err != nil {
			return fmt.Errorf("write bit %d: %w", bitAddress, err)
		}
		return nil
	})
}

// withRetry runs op until it succeeds. Caller holds c.mu.
func (c *Client) withRetry(ctx context.Context, name string, op func(Transport) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if c.lastErr != nil {
			c.disconnectLocked()
		}

		err := c.connectLocked()
		if types.IsConfiguration(err) {
			return err
		}
		if err == nil {
			err = op(c.transport)
			if err == nil {
				return nil
			}
			c.lastErr = err
		}

		c.logger.Warn("PLC operation failed",
			zap.String("operation", name),
			zap.String("host", c.host),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if c.opts.MaxRetries > 0 && attempt >= c.opts.MaxRetries {
			c.disconnectLocked()
			return fmt.Errorf("%w: %s failed after %d attempts: %v", types.ErrTransient, name, attempt, err)
		}

		c.disconnectLocked()

		if c.opts.RetryDelay > 0 {
			timer := time.NewTimer(c.opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (c *Client) connectLocked() error {
	if c.connected {
		return nil
	}
	if !c.configured {
		return fmt.Errorf("%w: PLC endpoint not configured", types.ErrConfiguration)
	}

	t := c.dial(c.host, c.localTSAP, c.remoteTSAP, c.opts.ConnectTimeout)
	if err := t.Connect(); err != nil {
		// a failed handshake can leave the TCP socket open
		_ = t.Close()
		c.lastErr = err
		return fmt.Errorf("%w: connect %s: %v", types.ErrTransient, c.host, err)
	}

	c.transport = t
	c.connected = true
	c.lastErr = nil

	c.logger.Info("PLC connected",
		zap.String("host", c.host),
		zap.Uint16("local_tsap", c.localTSAP),
		zap.Uint16("remote_tsap", c.remoteTSAP))

	return nil
}

func (c *Client) disconnectLocked() error {
	c.lastErr = nil
	if c.transport == nil {
		c.connected = false
		return nil
	}

	err := c.transport.Close()
	c.transport = nil
	c.connected = false

	c.logger.Info("PLC disconnected", zap.String("host", c.host))
	return err
}
