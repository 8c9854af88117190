package blocks

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"github.com/google/uuid"
)

const (
	StatusOnline             = "ONLINE"
	StatusConfigurationError = "CONFIGURATION_ERROR"
)

// Spec is a block binding as read from the bindings file or the REST API.
type Spec struct {
	Name      string `json:"name" yaml:"name"`
	Block     string `json:"block" yaml:"block"`
	Class     string `json:"class" yaml:"class"`
	Threshold int64  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Update is what sinks receive for every delivered value.
type Update struct {
	BlockID uuid.UUID
	Name    string
	Block   string
	Value   logo.Value
	At      time.Time
}

type Sink interface {
	Publish(u Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

func (f SinkFunc) Publish(u Update) { f(u) }

// Block is a named consumer of one PLC block.
type Block struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Class     logo.Class
	Threshold int64

	force  bool
	ref    logo.BlockReference
	refErr error
	sinks  []Sink

	mu        sync.RWMutex
	last      logo.Value
	hasLast   bool
	updatedAt time.Time
	delivered uint64
}

// NewBlock resolves the binding against family. A failed resolution does not
// fail construction: the block reports CONFIGURATION_ERROR and is never fed.
func NewBlock(spec Spec, family *logo.Family, force bool, sinks ...Sink) *Block {
	b := &Block{
		ID:        uuid.New(),
		Name:      spec.Name,
		Address:   strings.ToUpper(strings.TrimSpace(spec.Block)),
		Threshold: spec.Threshold,
		force:     force,
		sinks:     sinks,
	}

	class, err := logo.ParseClass(spec.Class)
	if err != nil {
		b.refErr = err
		return b
	}
	b.Class = class

	if b.Threshold < 0 {
		b.refErr = fmt.Errorf("%w: negative threshold %d", types.ErrConfiguration, b.Threshold)
		return b
	}

	b.ref, b.refErr = logo.ResolveFor(family, class, spec.Block)
	return b
}

func (b *Block) BlockName() string {
	return b.Address
}

func (b *Block) Reference() (logo.BlockReference, error) {
	return b.ref, b.refErr
}

func (b *Block) Err() error {
	return b.refErr
}

func (b *Block) Status() string {
	if b.refErr != nil {
		return StatusConfigurationError
	}
	return StatusOnline
}

// OnData applies update suppression and fans delivered values out to the sinks.
// Digital blocks deliver on change, analog blocks when the distance to the last
// delivered value reaches Threshold. The first value and forced updates always pass.
func (b *Block) OnData(v logo.Value) {
	b.mu.Lock()
	if b.hasLast && !b.force && !b.changed(v) {
		b.mu.Unlock()
		return
	}
	b.last = v
	b.hasLast = true
	b.updatedAt = time.Now()
	b.delivered++
	update := Update{
		BlockID: b.ID,
		Name:    b.Name,
		Block:   b.Address,
		Value:   v,
		At:      b.updatedAt,
	}
	b.mu.Unlock()

	for _, s := range b.sinks {
		s.Publish(update)
	}
}

func (b *Block) changed(v logo.Value) bool {
	if b.Class == logo.ClassDigital {
		return v.Bit != b.last.Bit
	}
	delta := v.Int64() - b.last.Int64()
	if delta < 0 {
		delta = -delta
	}
	return delta >= b.Threshold
}

// Last returns the last delivered value.
func (b *Block) Last() (logo.Value, time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.updatedAt, b.hasLast
}

type Info struct {
	ID          uuid.UUID            `json:"id"`
	Name        string               `json:"name"`
	Block       string               `json:"block"`
	Class       string               `json:"class"`
	Kind        string               `json:"kind,omitempty"`
	Threshold   int64                `json:"threshold,omitempty"`
	Reference   *logo.BlockReference `json:"reference,omitempty"`
	Value       any                  `json:"value,omitempty"`
	UpdatedAt   *time.Time           `json:"updated_at,omitempty"`
	Deliveries  uint64               `json:"deliveries"`
	Status      string               `json:"status"`
	StatusError string               `json:"status_error,omitempty"`
}

func (b *Block) Info() Info {
	info := Info{
		ID:        b.ID,
		Name:      b.Name,
		Block:     b.Address,
		Class:     b.Class.String(),
		Threshold: b.Threshold,
		Status:    b.Status(),
	}

	if b.refErr != nil {
		info.StatusError = b.refErr.Error()
	} else {
		ref := b.ref
		info.Reference = &ref
		info.Kind = ref.Kind.String()
	}

	b.mu.RLock()
	if b.hasLast {
		at := b.updatedAt
		info.Value = b.last.Interface()
		info.UpdatedAt = &at
	}
	info.Deliveries = b.delivered
	b.mu.RUnlock()

	return info
}
