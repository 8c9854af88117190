package blocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/KevinKickass/OpenLogoBridge/internal/bridge"
	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound  = errors.New("block not found")
	ErrDuplicate = errors.New("block name already attached")
)

// Bridge is the part of the bridge the manager drives.
type Bridge interface {
	Attach(c bridge.Consumer) bool
	Detach(c bridge.Consumer) bool
	Write(ctx context.Context, c bridge.Consumer, v logo.Value) error
	Refresh(ctx context.Context, c bridge.Consumer) (logo.Value, error)
	Family() (*logo.Family, error)
	ForceUpdate() bool
}

type Manager struct {
	bridge    Bridge
	validator *Validator
	sinks     []Sink
	blocks    map[uuid.UUID]*Block
	mu        sync.RWMutex
	logger    *zap.Logger
}

func NewManager(br Bridge, logger *zap.Logger, sinks ...Sink) (*Manager, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Manager{
		bridge:    br,
		validator: validator,
		sinks:     sinks,
		blocks:    make(map[uuid.UUID]*Block),
		logger:    logger,
	}, nil
}

// AttachJSON validates a raw JSON binding and attaches it.
func (m *Manager) AttachJSON(data []byte) (*Block, error) {
	if err := m.validator.ValidateBinding(data); err != nil {
		return nil, err
	}

	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	return m.attach(spec)
}

// Attach validates spec and registers a new block with the bridge.
func (m *Manager) Attach(spec Spec) (*Block, error) {
	if err := m.validator.ValidateSpec(spec); err != nil {
		return nil, err
	}
	return m.attach(spec)
}

func (m *Manager) attach(spec Spec) (*Block, error) {
	family, err := m.bridge.Family()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.blocks {
		if existing.Name == spec.Name {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, spec.Name)
		}
	}

	block := NewBlock(spec, family, m.bridge.ForceUpdate(), m.sinks...)
	m.bridge.Attach(block)
	m.blocks[block.ID] = block

	if err := block.Err(); err != nil {
		m.logger.Warn("Block attached with configuration error",
			zap.String("name", block.Name),
			zap.String("block", block.Address),
			zap.Error(err))
	} else {
		ref, _ := block.Reference()
		m.logger.Info("Block attached",
			zap.String("name", block.Name),
			zap.String("block", block.Address),
			zap.Int("address", ref.ByteAddress),
			zap.String("kind", ref.Kind.String()))
	}

	return block, nil
}

// LoadFile attaches every binding of a YAML file. Invalid bindings are logged and skipped.
func (m *Manager) LoadFile(path string) (int, error) {
	specs, err := LoadBindings(path)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, spec := range specs {
		if _, err := m.Attach(spec); err != nil {
			m.logger.Error("Failed to attach block",
				zap.String("name", spec.Name),
				zap.String("block", spec.Block),
				zap.Error(err))
			continue
		}
		loaded++
	}

	return loaded, nil
}

func (m *Manager) Detach(id uuid.UUID) error {
	m.mu.Lock()
	block, exists := m.blocks[id]
	if exists {
		delete(m.blocks, id)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	m.bridge.Detach(block)
	m.logger.Info("Block detached", zap.String("name", block.Name))
	return nil
}

func (m *Manager) DetachAll() {
	m.mu.Lock()
	blocks := m.blocks
	m.blocks = make(map[uuid.UUID]*Block)
	m.mu.Unlock()

	for _, block := range blocks {
		m.bridge.Detach(block)
	}
}

// Get returns block by ID
func (m *Manager) Get(id uuid.UUID) (*Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	block, exists := m.blocks[id]
	return block, exists
}

// GetByName returns block by name
func (m *Manager) GetByName(name string) (*Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, block := range m.blocks {
		if block.Name == name {
			return block, true
		}
	}

	return nil, false
}

// List returns all blocks sorted by name.
func (m *Manager) List() []*Block {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blocks := make([]*Block, 0, len(m.blocks))
	for _, block := range m.blocks {
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Name < blocks[j].Name })

	return blocks
}

// Write converts raw (bool, number or string) to the block's kind and writes it.
func (m *Manager) Write(ctx context.Context, id uuid.UUID, raw any) error {
	block, exists := m.Get(id)
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ref, err := block.Reference()
	if err != nil {
		return err
	}

	value, err := logo.ValueOf(ref.Kind, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	return m.bridge.Write(ctx, block, value)
}

func (m *Manager) Refresh(ctx context.Context, id uuid.UUID) (logo.Value, error) {
	block, exists := m.Get(id)
	if !exists {
		return logo.Value{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return m.bridge.Refresh(ctx, block)
}
