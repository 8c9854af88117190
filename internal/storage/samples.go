package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/blocks"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Sample struct {
	BlockID    uuid.UUID `json:"block_id"`
	BlockName  string    `json:"block_name"`
	Block      string    `json:"block"`
	Kind       string    `json:"kind"`
	Value      int64     `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

type SampleWriter interface {
	InsertSamples(ctx context.Context, samples []Sample) error
}

const (
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
)

// Recorder buffers delivered block values and writes them in batches from
// its own goroutine. Publish never blocks; samples are dropped when the buffer is full.
type Recorder struct {
	writer        SampleWriter
	queue         chan Sample
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	dropped  atomic.Uint64
	written  atomic.Uint64
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRecorder(writer SampleWriter, buffer int, logger *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Recorder{
		writer:        writer,
		queue:         make(chan Sample, buffer),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Publish implements blocks.Sink.
func (r *Recorder) Publish(u blocks.Update) {
	s := Sample{
		BlockID:    u.BlockID,
		BlockName:  u.Name,
		Block:      u.Block,
		Kind:       u.Value.Kind.String(),
		Value:      u.Value.Int64(),
		RecordedAt: u.At,
	}

	select {
	case r.queue <- s:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.logger.Warn("Sample buffer full, dropping samples",
				zap.Uint64("dropped_total", r.dropped.Load()))
		}
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Info("Sample recorder started", zap.Int("buffer", cap(r.queue)))
}

// Stop flushes pending samples and stops the worker.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
	r.logger.Info("Sample recorder stopped",
		zap.Uint64("written", r.written.Load()),
		zap.Uint64("dropped", r.dropped.Load()))
}

func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]Sample, 0, r.batchSize)

	for {
		select {
		case s := <-r.queue:
			batch = append(batch, s)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-r.stopChan:
			for {
				select {
				case s := <-r.queue:
					batch = append(batch, s)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []Sample) []Sample {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.writer.InsertSamples(ctx, batch); err != nil {
		r.logger.Error("Failed to write samples", zap.Int("count", len(batch)), zap.Error(err))
	} else {
		r.written.Add(uint64(len(batch)))
	}

	return batch[:0]
}
