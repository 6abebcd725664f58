package batcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"embatch/internal/embedding"
)

// Client performs one batched inference call. The returned slice must hold
// one embedding per input, in input order.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Config holds the coordinator's immutable batching parameters.
type Config struct {
	MaxBatchSize     int           // caller requests per upstream call
	MaxTotalInputs   int           // input strings per upstream call (upstream hard cap)
	MaxWait          time.Duration // how long a batch stays open after its first item
	IncludeBatchInfo bool
}

// Coordinator serializes concurrent submissions into a single scheduling
// loop, forms batches under the size and deadline triggers, and dispatches
// each formed batch as an independent flight. Flights run in parallel;
// upstream latency never stalls admission into the next batch.
type Coordinator struct {
	cfg    Config
	client Client
	logger zerolog.Logger

	submitCh chan *Item
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	flights  sync.WaitGroup
	mu       sync.Mutex
	inFlight map[uint64][]*Item

	batchSeq atomic.Uint64
}

// New creates a Coordinator and starts its scheduling loop.
func New(cfg Config, client Client, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		client:   client,
		logger:   logger.With().Str("component", "batcher").Logger(),
		submitCh: make(chan *Item),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		inFlight: make(map[uint64][]*Item),
	}

	go c.run()

	return c
}

// Submit queues inputs for the next batch and blocks until the caller's
// slice is delivered, the context is done, or the coordinator shuts down.
// The returned embeddings are positionally aligned to inputs.
//
// A caller that gives up keeps its slot: the pending batch is never
// reshuffled, and the delivered result is discarded.
func (c *Coordinator) Submit(ctx context.Context, inputs []string) ([][]float32, *embedding.BatchInfo, error) {
	if len(inputs) == 0 {
		return nil, nil, embedding.ErrEmptyInputs
	}
	if len(inputs) > c.cfg.MaxTotalInputs {
		return nil, nil, embedding.ErrOversize
	}

	item := &Item{
		Inputs:     inputs,
		ReceivedAt: time.Now(),
		resultCh:   make(chan Result, 1),
	}

	select {
	case c.submitCh <- item:
	case <-c.stopCh:
		return nil, nil, embedding.ErrShutdown
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	select {
	case res := <-item.resultCh:
		return res.Embeddings, res.BatchInfo, res.Err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// run is the single scheduling loop. It is the only goroutine touching the
// Builder and the deadline timer.
func (c *Coordinator) run() {
	defer close(c.doneCh)

	builder := NewBuilder(c.cfg.MaxBatchSize, c.cfg.MaxTotalInputs)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	disarm := func() {
		if timerArmed && !timer.Stop() {
			<-timer.C
		}
		timerArmed = false
	}

	for {
		select {
		case item := <-c.submitCh:
			if !builder.CanAdmit(item) {
				// The incoming item can't share the pending batch: flush it
				// now, then start fresh with this item.
				disarm()
				c.dispatch(builder.Drain(), embedding.TriggerMaxBatchSize)
			}
			wasEmpty := builder.Empty()
			builder.Admit(item)
			if wasEmpty {
				// Deadline is anchored to the item's arrival, not to this
				// admission, so queueing delay counts against the wait.
				timer.Reset(c.cfg.MaxWait - time.Since(item.ReceivedAt))
				timerArmed = true
			}
			if builder.Full() {
				disarm()
				c.dispatch(builder.Drain(), embedding.TriggerMaxBatchSize)
			}

		case <-timer.C:
			timerArmed = false
			if !builder.Empty() {
				c.dispatch(builder.Drain(), embedding.TriggerMaxWaitTime)
			}

		case <-c.stopCh:
			disarm()
			if !builder.Empty() {
				c.dispatch(builder.Drain(), embedding.TriggerShutdown)
			}
			return
		}
	}
}

// dispatch snapshots a drained batch into an immutable flight and launches
// it on its own goroutine.
func (c *Coordinator) dispatch(items []*Item, trigger embedding.BatchTrigger) {
	if len(items) == 0 {
		return
	}

	total := 0
	for _, it := range items {
		total += len(it.Inputs)
	}
	inputs := make([]string, 0, total)
	for _, it := range items {
		inputs = append(inputs, it.Inputs...)
	}

	id := c.batchSeq.Add(1)

	var info *embedding.BatchInfo
	if c.cfg.IncludeBatchInfo {
		info = &embedding.BatchInfo{
			BatchID:   id,
			BatchType: trigger,
			BatchSize: len(items),
		}
		if trigger == embedding.TriggerMaxWaitTime {
			info.BatchWaitTimeMs = c.cfg.MaxWait.Milliseconds()
		}
	}

	c.mu.Lock()
	c.inFlight[id] = items
	c.mu.Unlock()

	c.logger.Debug().
		Uint64("batchId", id).
		Str("trigger", string(trigger)).
		Int("items", len(items)).
		Int("inputs", len(inputs)).
		Msg("dispatching batch")

	c.flights.Add(1)
	go c.fly(id, items, inputs, info)
}

// fly executes one upstream call and distributes the sliced results.
func (c *Coordinator) fly(id uint64, items []*Item, inputs []string, info *embedding.BatchInfo) {
	defer c.flights.Done()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, id)
		c.mu.Unlock()
	}()

	start := time.Now()
	embeddings, err := c.client.Embed(context.Background(), inputs)
	elapsed := time.Since(start)

	if err != nil {
		c.logger.Error().Err(err).Uint64("batchId", id).Msg("batch failed")
		for _, it := range items {
			it.deliver(Result{Err: err})
		}
		return
	}

	if len(embeddings) != len(inputs) {
		c.logger.Error().
			Uint64("batchId", id).
			Int("expected", len(inputs)).
			Int("got", len(embeddings)).
			Msg("batch result size mismatch")

		shapeErr := &embedding.ShapeError{Want: len(inputs), Got: len(embeddings)}
		for _, it := range items {
			it.deliver(Result{Err: shapeErr})
		}
		return
	}

	if info != nil {
		info.InferenceTimeMs = float64(elapsed.Microseconds()) / 1000.0
	}

	offset := 0
	for _, it := range items {
		next := offset + len(it.Inputs)
		it.deliver(Result{Embeddings: embeddings[offset:next:next], BatchInfo: info})
		offset = next
	}

	c.logger.Debug().
		Uint64("batchId", id).
		Int("items", len(items)).
		Dur("inferenceTime", elapsed).
		Msg("batch completed")
}

// Close stops intake, flushes the open batch, and waits for outstanding
// flights until ctx is done. Flights still outstanding at the deadline have
// their callers failed with ErrShutdown; should such a flight complete
// later, its result is dropped by the first-write-wins delivery.
func (c *Coordinator) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh

	done := make(chan struct{})
	go func() {
		c.flights.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info().Msg("batch coordinator closed")
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		for id, items := range c.inFlight {
			c.logger.Warn().Uint64("batchId", id).Msg("abandoning in-flight batch at shutdown")
			for _, it := range items {
				it.deliver(Result{Err: embedding.ErrShutdown})
			}
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}
