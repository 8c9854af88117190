package blocks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/KevinKickass/OpenLogoBridge/internal/bridge"
	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"go.uber.org/zap"
)

type fakeBridge struct {
	mu       sync.Mutex
	attached map[bridge.Consumer]bool
	writes   map[string]logo.Value
	force    bool
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		attached: map[bridge.Consumer]bool{},
		writes:   map[string]logo.Value{},
	}
}

func (f *fakeBridge) Attach(c bridge.Consumer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[c] = true
	return true
}

func (f *fakeBridge) Detach(c bridge.Consumer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attached, c)
	return true
}

func (f *fakeBridge) Write(ctx context.Context, c bridge.Consumer, v logo.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[c.BlockName()] = v
	return nil
}

func (f *fakeBridge) Refresh(ctx context.Context, c bridge.Consumer) (logo.Value, error) {
	v := logo.WordValue(12)
	c.OnData(v)
	return v, nil
}

func (f *fakeBridge) Family() (*logo.Family, error) {
	return logo.NewCatalog().Family(logo.Family0BA8)
}

func (f *fakeBridge) ForceUpdate() bool { return f.force }

func newTestManager(t *testing.T, sinks ...Sink) (*Manager, *fakeBridge) {
	t.Helper()
	br := newFakeBridge()
	m, err := NewManager(br, zap.NewNop(), sinks...)
	if err != nil {
		t.Fatal(err)
	}
	return m, br
}

func TestManagerAttachDetach(t *testing.T) {
	m, br := newTestManager(t)

	b, err := m.Attach(Spec{Name: "temp", Block: "AI1", Class: "analog", Threshold: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !br.attached[b] {
		t.Error("block not attached to bridge")
	}

	if _, err := m.Attach(Spec{Name: "temp", Block: "AI2", Class: "analog"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected duplicate error, got %v", err)
	}

	if got, ok := m.GetByName("temp"); !ok || got != b {
		t.Error("GetByName failed")
	}

	if err := m.Detach(b.ID); err != nil {
		t.Fatal(err)
	}
	if br.attached[b] {
		t.Error("block still attached")
	}
	if err := m.Detach(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestManagerAttachSchemaRejects(t *testing.T) {
	m, _ := newTestManager(t)

	bad := []string{
		`{"name": "x", "block": "AI1"}`,
		`{"name": "x", "block": "AI1", "class": "pressure"}`,
		`{"name": "x y", "block": "AI1", "class": "analog"}`,
		`{"name": "x", "block": "AI1", "class": "analog", "threshold": -3}`,
		`{"name": "x", "block": "AI1", "class": "analog", "extra": true}`,
		`not json`,
	}

	for _, doc := range bad {
		if _, err := m.AttachJSON([]byte(doc)); !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("AttachJSON(%s) = %v, want configuration error", doc, err)
		}
	}

	b, err := m.AttachJSON([]byte(`{"name": "lamp", "block": "Q3", "class": "digital"}`))
	if err != nil {
		t.Fatal(err)
	}
	if b.Status() != StatusOnline {
		t.Errorf("status = %s", b.Status())
	}
}

func TestManagerKeepsUnresolvableBlock(t *testing.T) {
	m, br := newTestManager(t)

	// passes the schema but lies outside the image
	b, err := m.Attach(Spec{Name: "far", Block: "VW5000", Class: "analog"})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status() != StatusConfigurationError || !br.attached[b] {
		t.Error("unresolvable block must be attached with configuration error")
	}

	if err := m.Write(context.Background(), b.ID, 1); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("write to invalid block = %v", err)
	}
}

func TestManagerWriteConvertsValue(t *testing.T) {
	m, br := newTestManager(t)
	ctx := context.Background()

	q, _ := m.Attach(Spec{Name: "lamp", Block: "Q1", Class: "digital"})
	vw, _ := m.Attach(Spec{Name: "setpoint", Block: "VW10", Class: "analog"})

	if err := m.Write(ctx, q.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(ctx, vw.ID, float64(1234)); err != nil {
		t.Fatal(err)
	}
	if br.writes["Q1"] != logo.BitValue(true) || br.writes["VW10"] != logo.WordValue(1234) {
		t.Errorf("writes = %v", br.writes)
	}

	if err := m.Write(ctx, vw.ID, "abc"); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("expected conversion error, got %v", err)
	}
}

func TestManagerRefreshDeliversToSinks(t *testing.T) {
	sink := &collectSink{}
	m, _ := newTestManager(t, sink)

	b, _ := m.Attach(Spec{Name: "level", Block: "AM1", Class: "analog"})
	v, err := m.Refresh(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Word != 12 || sink.count() != 1 {
		t.Errorf("refresh value %d, deliveries %d", v.Word, sink.count())
	}
}

func TestManagerLoadFile(t *testing.T) {
	m, _ := newTestManager(t)

	path := filepath.Join(t.TempDir(), "blocks.yaml")
	content := `
blocks:
  - name: heater
    block: Q1
    class: digital
  - name: temperature
    block: AI1
    class: analog
    threshold: 5
  - name: broken
    block: AI1
    class: unknown
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := m.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("loaded = %d, want 2", n)
	}

	list := m.List()
	if len(list) != 2 || list[0].Name != "heater" || list[1].Name != "temperature" {
		t.Errorf("list = %v", list)
	}

	m.DetachAll()
	if len(m.List()) != 0 {
		t.Error("DetachAll left blocks")
	}
}

func TestLoadBindingsMissingFile(t *testing.T) {
	if _, err := LoadBindings(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error")
	}
}
