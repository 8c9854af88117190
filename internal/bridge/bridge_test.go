package bridge

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"go.uber.org/zap"
)

type fakePLC struct {
	mu          sync.Mutex
	memory      []byte
	connected   bool
	connects    int
	disconnects int
	readErr     error
	failReads   int
	reads       [][2]int
	areaWrites  map[int][]byte
	bitWrites   map[int]bool
}

func newFakePLC(size int) *fakePLC {
	return &fakePLC{
		memory:     make([]byte, size),
		areaWrites: map[int][]byte{},
		bitWrites:  map[int]bool{},
	}
}

func (p *fakePLC) Connect(ctx context.Context, host string, localTSAP, remoteTSAP uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	p.connected = true
	return nil
}

func (p *fakePLC) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	p.connected = false
	return nil
}

func (p *fakePLC) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePLC) ReadArea(ctx context.Context, start, length int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, [2]int{start, length})
	if p.readErr != nil {
		return nil, p.readErr
	}
	if p.failReads > 0 {
		p.failReads--
		return nil, errors.New("retries exhausted")
	}
	out := make([]byte, length)
	copy(out, p.memory[start:start+length])
	return out, nil
}

func (p *fakePLC) WriteArea(ctx context.Context, start int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.areaWrites[start] = append([]byte(nil), data...)
	return nil
}

func (p *fakePLC) WriteBit(ctx context.Context, bitAddress int, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bitWrites[bitAddress] = value
	return nil
}

func (p *fakePLC) setReadErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

type recordingConsumer struct {
	name   string
	ref    logo.BlockReference
	refErr error
	values chan logo.Value
	panics bool
}

func newConsumer(t *testing.T, name string) *recordingConsumer {
	t.Helper()
	f, _ := logo.NewCatalog().Family(logo.Family0BA8)
	ref, err := logo.Resolve(f, name)
	return &recordingConsumer{name: name, ref: ref, refErr: err, values: make(chan logo.Value, 64)}
}

func (c *recordingConsumer) BlockName() string { return c.name }

func (c *recordingConsumer) Reference() (logo.BlockReference, error) { return c.ref, c.refErr }

func (c *recordingConsumer) OnData(v logo.Value) {
	if c.panics {
		panic("consumer failure")
	}
	select {
	case c.values <- v:
	default:
	}
}

func (c *recordingConsumer) next(t *testing.T) logo.Value {
	t.Helper()
	select {
	case v := <-c.values:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("no value delivered to %s", c.name)
		return logo.Value{}
	}
}

func testConfig() Config {
	return Config{
		Host:            "192.168.0.10",
		LocalTSAP:       0x0100,
		RemoteTSAP:      0x0200,
		Family:          logo.Family0BA8,
		RefreshInterval: 10 * time.Millisecond,
	}
}

func waitState(t *testing.T, b *Bridge, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", b.State(), want)
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"no host":        func(c *Config) { c.Host = "" },
		"no local tsap":  func(c *Config) { c.LocalTSAP = 0 },
		"no remote tsap": func(c *Config) { c.RemoteTSAP = 0 },
		"no interval":    func(c *Config) { c.RefreshInterval = 0 },
		"interval in ns": func(c *Config) { c.RefreshInterval = 100 },
		"below minimum":  func(c *Config) { c.RefreshInterval = 9 * time.Millisecond },
		"bad family":     func(c *Config) { c.Family = "0BA5" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			plc := newFakePLC(1470)
			b := New(cfg, logo.NewCatalog(), plc, zap.NewNop())

			err := b.Start()
			if !errors.Is(err, types.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if b.State() != StateConfigurationError {
				t.Errorf("state = %s", b.State())
			}
			if b.IsRunning() {
				t.Error("bridge must not run")
			}
			if plc.connects != 0 {
				t.Error("no connection attempt expected")
			}
		})
	}
}

func TestPollDispatchesDecodedValues(t *testing.T) {
	plc := newFakePLC(1470)
	plc.memory[1036], plc.memory[1037] = 0x01, 0x2C // AI3 = 300
	plc.memory[1064] = 0x02                         // Q2
	plc.memory[5] = 0x08                            // VB5.3

	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())

	ai := newConsumer(t, "AI3")
	q := newConsumer(t, "Q2")
	vb := newConsumer(t, "VB5.3")
	invalid := newConsumer(t, "NAQ40")
	if invalid.refErr == nil {
		t.Fatal("NAQ40 must not resolve")
	}

	for _, c := range []*recordingConsumer{ai, q, vb, invalid} {
		b.Attach(c)
	}

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	if v := ai.next(t); v.Word != 300 {
		t.Errorf("AI3 = %d", v.Word)
	}
	if v := q.next(t); !v.Bit {
		t.Error("Q2 must be on")
	}
	if v := vb.next(t); !v.Bit {
		t.Error("VB5.3 must be on")
	}
	waitState(t, b, StateOnline)

	select {
	case <-invalid.values:
		t.Error("invalid consumer must be skipped")
	default:
	}

	img := b.Snapshot()
	if img == nil || len(img.Data) != 1470 {
		t.Fatal("no image published")
	}

	plc.mu.Lock()
	first := plc.reads[0]
	plc.mu.Unlock()
	if first != [2]int{0, 1470} {
		t.Errorf("first read = %v, want full image", first)
	}
}

func TestPanickingConsumerDoesNotStopOthers(t *testing.T) {
	plc := newFakePLC(1470)
	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())

	bad := newConsumer(t, "AI1")
	bad.panics = true
	good := newConsumer(t, "AI2")
	b.Attach(bad)
	b.Attach(good)

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	good.next(t)
	good.next(t)
}

type transitionLog struct {
	mu   sync.Mutex
	seen []State
}

func (l *transitionLog) record(from, to State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, to)
}

func (l *transitionLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.seen...)
}

func (l *transitionLog) waitLen(t *testing.T, n int) []State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if seen := l.states(); len(seen) >= n {
			return seen
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("transitions = %v, want at least %d", l.states(), n)
	return nil
}

func TestReadFailureGoesOfflineAndRecovers(t *testing.T) {
	plc := newFakePLC(1470)
	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())

	trail := &transitionLog{}
	b.OnStateChange(trail.record)

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	waitState(t, b, StateOnline)

	plc.mu.Lock()
	plc.failReads = 1
	plc.mu.Unlock()

	seen := trail.waitLen(t, 5)
	waitState(t, b, StateOnline)
	if b.Status().LastError != "" {
		t.Errorf("last error not cleared: %s", b.Status().LastError)
	}

	want := []State{StateConnecting, StateOnline, StateOffline, StateConnecting, StateOnline}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}

func TestNeverOnlineWithoutImage(t *testing.T) {
	plc := newFakePLC(1470)
	plc.readErr = errors.New("retries exhausted")
	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())

	trail := &transitionLog{}
	b.OnStateChange(trail.record)

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	// two full failed cycles
	trail.waitLen(t, 4)
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	seen := trail.states()
	if seen[0] != StateConnecting || seen[1] != StateOffline || seen[2] != StateConnecting {
		t.Errorf("transitions = %v", seen)
	}
	if seen[len(seen)-1] != StateStopped {
		t.Errorf("last transition = %s, want STOPPED", seen[len(seen)-1])
	}
	for _, s := range seen {
		if s == StateOnline {
			t.Fatalf("ONLINE reported without a successful read: %v", seen)
		}
	}
	if st := b.Status(); st.Cycles != 0 || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}
	if b.Snapshot() != nil {
		t.Error("image published without a successful read")
	}
}

func TestWriteEncodesByKind(t *testing.T) {
	plc := newFakePLC(1470)
	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())
	ctx := context.Background()

	vw := newConsumer(t, "VW10")
	if err := b.Write(ctx, vw, logo.WordValue(300)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plc.areaWrites[10], []byte{0x01, 0x2C}) {
		t.Errorf("VW10 write = % x", plc.areaWrites[10])
	}

	vd := newConsumer(t, "VD20")
	if err := b.Write(ctx, vd, logo.DWordValue(0x01020304)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plc.areaWrites[20], []byte{1, 2, 3, 4}) {
		t.Errorf("VD20 write = % x", plc.areaWrites[20])
	}

	q := newConsumer(t, "Q2")
	if err := b.Write(ctx, q, logo.BitValue(true)); err != nil {
		t.Fatal(err)
	}
	if v, ok := plc.bitWrites[8*1064+1]; !ok || !v {
		t.Errorf("bit writes = %v", plc.bitWrites)
	}

	vb := newConsumer(t, "VB5.3")
	if err := b.Write(ctx, vb, logo.BitValue(true)); err != nil {
		t.Fatal(err)
	}
	if v, ok := plc.bitWrites[8*5+3]; !ok || !v {
		t.Errorf("VB5.3 bit write = %v", plc.bitWrites)
	}
	if err := b.Write(ctx, vb, logo.BitValue(false)); err != nil {
		t.Fatal(err)
	}
	if v := plc.bitWrites[8*5+3]; v {
		t.Error("VB5.3 must be cleared")
	}

	if err := b.Write(ctx, q, logo.WordValue(1)); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("kind mismatch must be a configuration error, got %v", err)
	}

	invalid := newConsumer(t, "X9")
	if err := b.Write(ctx, invalid, logo.BitValue(true)); err == nil {
		t.Error("write to invalid block must fail")
	}
}

func TestRefreshReadsSingleBlock(t *testing.T) {
	plc := newFakePLC(1470)
	plc.memory[1262], plc.memory[1263] = 0xFF, 0xFF
	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())

	nai := newConsumer(t, "NAI1")
	v, err := b.Refresh(context.Background(), nai)
	if err != nil {
		t.Fatal(err)
	}
	if v.Word != -1 {
		t.Errorf("NAI1 = %d", v.Word)
	}
	if got := nai.next(t); got.Word != -1 {
		t.Errorf("delivered %d", got.Word)
	}
	if plc.reads[0] != [2]int{1262, 2} {
		t.Errorf("read = %v", plc.reads[0])
	}
}

func TestStopDisconnectsAndHalts(t *testing.T) {
	plc := newFakePLC(1470)
	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	waitState(t, b, StateOnline)

	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateStopped {
		t.Errorf("state = %s", b.State())
	}
	if plc.disconnects != 1 {
		t.Errorf("disconnects = %d", plc.disconnects)
	}

	plc.mu.Lock()
	reads := len(plc.reads)
	plc.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	plc.mu.Lock()
	defer plc.mu.Unlock()
	if len(plc.reads) != reads {
		t.Error("poll continued after stop")
	}

	// second stop is a no-op
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	plc := newFakePLC(1470)
	b := New(testConfig(), logo.NewCatalog(), plc, zap.NewNop())

	c := newConsumer(t, "M1")
	if !b.Attach(c) {
		t.Fatal("attach failed")
	}
	if b.Attach(c) {
		t.Error("duplicate attach must report false")
	}
	if !b.Detach(c) {
		t.Error("detach failed")
	}
	if b.Detach(c) {
		t.Error("second detach must report false")
	}

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	waitState(t, b, StateOnline)
	b.Stop()

	if len(c.values) != 0 {
		t.Error("detached consumer received data")
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateUnconfigured, StateConnecting, true},
		{StateConnecting, StateOnline, true},
		{StateOnline, StateOffline, true},
		{StateOffline, StateConnecting, true},
		{StateOffline, StateOnline, false},
		{StateUnconfigured, StateOnline, false},
		{StateConfigurationError, StateConnecting, false},
		{StateConfigurationError, StateOnline, false},
		{StateStopped, StateConnecting, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}
}
