package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"go.uber.org/zap"
)

// PLC is the protocol client used by the bridge.
type PLC interface {
	Connect(ctx context.Context, host string, localTSAP, remoteTSAP uint16) error
	Disconnect() error
	Connected() bool
	ReadArea(ctx context.Context, start, length int) ([]byte, error)
	WriteArea(ctx context.Context, start int, data []byte) error
	WriteBit(ctx context.Context, bitAddress int, value bool) error
}

type Config struct {
	Host            string
	LocalTSAP       uint16
	RemoteTSAP      uint16
	Family          string
	RefreshInterval time.Duration
	ForceUpdate     bool
}

// Validate checks the bridge identity and resolves the family.
// MinRefreshInterval is the shortest accepted poll interval.
const MinRefreshInterval = 10 * time.Millisecond

func (c Config) Validate(catalog *logo.Catalog) (*logo.Family, error) {
	switch {
	case c.Host == "":
		return nil, fmt.Errorf("%w: PLC address missing", types.ErrConfiguration)
	case c.LocalTSAP == 0:
		return nil, fmt.Errorf("%w: local TSAP missing", types.ErrConfiguration)
	case c.RemoteTSAP == 0:
		return nil, fmt.Errorf("%w: remote TSAP missing", types.ErrConfiguration)
	case c.RefreshInterval < MinRefreshInterval:
		return nil, fmt.Errorf("%w: refresh interval %s below minimum %s",
			types.ErrConfiguration, c.RefreshInterval, MinRefreshInterval)
	}
	return catalog.Family(c.Family)
}

// Image is one published snapshot of the DB1 image. Never modified after Store.
type Image struct {
	Data   []byte
	ReadAt time.Time
	Cycle  uint64
}

type Status struct {
	State     State     `json:"state"`
	Host      string    `json:"host"`
	Family    string    `json:"family"`
	ImageSize int       `json:"image_size"`
	Consumers int       `json:"consumers"`
	Cycles    uint64    `json:"cycles"`
	LastRead  time.Time `json:"last_read,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// StateListener is notified after every state change.
type StateListener func(from, to State, err error)

type Bridge struct {
	cfg      Config
	catalog  *logo.Catalog
	plc      PLC
	registry *Registry
	logger   *zap.Logger

	stateMu   sync.RWMutex
	state     State
	lastError string
	family    *logo.Family

	listenersMu sync.RWMutex
	listeners   []StateListener

	image  atomic.Pointer[Image]
	cycles atomic.Uint64

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(cfg Config, catalog *logo.Catalog, plc PLC, logger *zap.Logger) *Bridge {
	return &Bridge{
		cfg:      cfg,
		catalog:  catalog,
		plc:      plc,
		registry: NewRegistry(logger),
		logger:   logger,
		state:    StateUnconfigured,
	}
}

// Start validates the configuration and starts the poll worker.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	family, err := b.cfg.Validate(b.catalog)
	if err != nil {
		b.logger.Error("Invalid bridge configuration", zap.Error(err))
		b.setState(StateConfigurationError, err)
		return err
	}

	b.stateMu.Lock()
	b.family = family
	b.stateMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.stopChan = make(chan struct{})
	b.running = true

	b.setState(StateConnecting, nil)

	b.wg.Add(1)
	go b.pollLoop(ctx)

	b.logger.Info("Bridge started",
		zap.String("host", b.cfg.Host),
		zap.String("family", family.Name()),
		zap.Int("image_size", family.ImageSize()),
		zap.Duration("interval", b.cfg.RefreshInterval))

	return nil
}

// Stop cancels the worker, waits for the in-flight cycle and disconnects.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stopChan)
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()

	err := b.plc.Disconnect()
	b.setState(StateStopped, nil)

	b.logger.Info("Bridge stopped", zap.String("host", b.cfg.Host))
	return err
}

func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Attach registers a consumer. Consumers with an invalid reference are
// accepted but skipped during dispatch.
func (b *Bridge) Attach(c Consumer) bool {
	if _, err := c.Reference(); err != nil {
		b.logger.Warn("Block consumer has invalid reference",
			zap.String("block", c.BlockName()),
			zap.Error(err))
	}
	return b.registry.Register(c)
}

func (b *Bridge) Detach(c Consumer) bool {
	return b.registry.Unregister(c)
}

// Write encodes v for the consumer's block and sends it synchronously.
func (b *Bridge) Write(ctx context.Context, c Consumer, v logo.Value) error {
	ref, err := c.Reference()
	if err != nil {
		return err
	}

	data, err := logo.Encode(ref, v)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	if ref.Kind == logo.KindBit {
		err = b.plc.WriteBit(ctx, ref.BitAddress(), v.Bit)
	} else {
		err = b.plc.WriteArea(ctx, ref.ByteAddress, data)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", ref.Name, err)
	}

	b.logger.Debug("Block written",
		zap.String("block", ref.Name),
		zap.Int("address", ref.ByteAddress),
		zap.String("value", v.String()))

	return nil
}

// Refresh reads only the consumer's block and delivers it.
func (b *Bridge) Refresh(ctx context.Context, c Consumer) (logo.Value, error) {
	ref, err := c.Reference()
	if err != nil {
		return logo.Value{}, err
	}

	data, err := b.plc.ReadArea(ctx, ref.ByteAddress, ref.Kind.Width())
	if err != nil {
		return logo.Value{}, fmt.Errorf("refresh %s: %w", ref.Name, err)
	}

	v, err := logo.Decode(ref, data)
	if err != nil {
		return logo.Value{}, err
	}

	b.deliver(c, v)
	return v, nil
}

func (b *Bridge) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// Family returns the resolved family, or the configured one if Start has not run yet.
func (b *Bridge) Family() (*logo.Family, error) {
	b.stateMu.RLock()
	f := b.family
	b.stateMu.RUnlock()
	if f != nil {
		return f, nil
	}
	return b.catalog.Family(b.cfg.Family)
}

func (b *Bridge) ForceUpdate() bool {
	return b.cfg.ForceUpdate
}

// Snapshot returns the latest published image or nil.
func (b *Bridge) Snapshot() *Image {
	return b.image.Load()
}

func (b *Bridge) Status() Status {
	consumers := b.registry.Len()

	b.stateMu.RLock()
	status := Status{
		State:     b.state,
		Host:      b.cfg.Host,
		Family:    b.cfg.Family,
		Consumers: consumers,
		Cycles:    b.cycles.Load(),
		LastError: b.lastError,
	}
	if b.family != nil {
		status.ImageSize = b.family.ImageSize()
	}
	b.stateMu.RUnlock()

	if img := b.image.Load(); img != nil {
		status.LastRead = img.ReadAt
	}
	return status
}

// OnStateChange registers a listener. Listeners run synchronously and must not block.
func (b *Bridge) OnStateChange(fn StateListener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *Bridge) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	// Fixed delay: the next cycle is scheduled after the previous one finished.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-timer.C:
			b.pollOnce(ctx)
			timer.Reset(b.cfg.RefreshInterval)
		}
	}
}

func (b *Bridge) pollOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Poll cycle panicked", zap.Any("panic", r))
		}
	}()

	family, err := b.Family()
	if err != nil {
		b.logger.Error("Poll without family", zap.Error(err))
		return
	}

	// ONLINE is only reached through a full image read
	if b.State() == StateOffline {
		b.setState(StateConnecting, nil)
	}

	if !b.plc.Connected() {
		if err := b.plc.Connect(ctx, b.cfg.Host, b.cfg.LocalTSAP, b.cfg.RemoteTSAP); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("PLC connect failed", zap.String("host", b.cfg.Host), zap.Error(err))
			b.setState(StateOffline, err)
			return
		}
	}

	data, err := b.plc.ReadArea(ctx, 0, family.ImageSize())
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		b.logger.Warn("Image read failed", zap.String("host", b.cfg.Host), zap.Error(err))
		b.setState(StateOffline, err)
		return
	}

	img := &Image{
		Data:   data,
		ReadAt: time.Now(),
		Cycle:  b.cycles.Add(1),
	}
	b.image.Store(img)
	b.setState(StateOnline, nil)

	b.dispatch(img)
}

func (b *Bridge) dispatch(img *Image) {
	b.registry.ForEach(func(c Consumer) {
		ref, err := c.Reference()
		if err != nil {
			b.logger.Debug("Skipping invalid block consumer",
				zap.String("block", c.BlockName()),
				zap.Error(err))
			return
		}

		data, err := logo.Extract(ref, img.Data)
		if err != nil {
			b.logger.Warn("Block outside image", zap.String("block", ref.Name), zap.Error(err))
			return
		}

		v, err := logo.Decode(ref, data)
		if err != nil {
			b.logger.Warn("Block decode failed", zap.String("block", ref.Name), zap.Error(err))
			return
		}

		b.deliver(c, v)
	})
}

func (b *Bridge) deliver(c Consumer, v logo.Value) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Block consumer panicked",
				zap.String("block", c.BlockName()),
				zap.Any("panic", r))
		}
	}()
	c.OnData(v)
}

func (b *Bridge) setState(to State, cause error) {
	b.stateMu.Lock()
	from := b.state
	if from == to {
		if cause != nil {
			b.lastError = cause.Error()
		}
		b.stateMu.Unlock()
		return
	}
	if err := ValidateTransition(from, to); err != nil {
		b.stateMu.Unlock()
		b.logger.Warn("Rejected bridge state change", zap.Error(err))
		return
	}
	b.state = to
	if cause != nil {
		b.lastError = cause.Error()
	} else if to == StateOnline {
		b.lastError = ""
	}
	b.stateMu.Unlock()

	b.logger.Info("Bridge state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))

	b.listenersMu.RLock()
	listeners := append([]StateListener(nil), b.listeners...)
	b.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(from, to, cause)
	}
}
