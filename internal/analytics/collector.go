package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mrtazz/admiral/pkg/kafka"
	"github.com/mrtazz/admiral/pkg/metrics"
)

// Publisher writes a batch of events; *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector accumulates events and flushes them either when the buffer
// reaches batchSize or every flushInterval. Track never blocks the caller on
// the broker; when publishing keeps failing the buffer is capped at three
// batches and the oldest overflow is dropped. Events tracked after the flush
// loop has stopped are counted as dropped.
type Collector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	done          chan struct{}
	closed        bool
	// flushing counts size-triggered flushes; Add happens under mu while
	// closed is false, so the final Wait cannot race a new Add.
	flushing sync.WaitGroup
}

// NewCollector creates a Collector. m may be nil.
func NewCollector(publisher Publisher, batchSize int, flushInterval time.Duration, m *metrics.Metrics) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		metrics:       m,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop; it stops after a final flush
// once ctx is cancelled. Callers serving requests should cancel ctx only
// after the last Track call.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Flush(ctx)
			case <-ctx.Done():
				c.mu.Lock()
				c.closed = true
				c.mu.Unlock()
				c.flushing.Wait()

				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.Flush(flushCtx)
				cancel()
				c.mu.Lock()
				left := len(c.buffer)
				c.buffer = nil
				c.mu.Unlock()
				if left > 0 {
					c.count("dropped", left)
					c.logger.Warn("unpublished events dropped on shutdown", "dropped", left)
				}
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track buffers an event keyed by its type.
func (c *Collector) Track(key string, value any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.count("dropped", 1)
		c.logger.Warn("event tracked after collector stopped", "key", key)
		return
	}
	c.buffer = append(c.buffer, kafka.Event{Key: key, Value: value})
	shouldFlush := len(c.buffer) >= c.batchSize
	if shouldFlush {
		c.flushing.Add(1)
	}
	c.mu.Unlock()

	if shouldFlush {
		go func() {
			defer c.flushing.Done()
			c.Flush(context.Background())
		}()
	}
}

// TrackSearch buffers a search event.
func (c *Collector) TrackSearch(event SearchEvent) {
	event.Type = EventSearch
	c.Track(string(EventSearch), event)
}

// Close waits for the background loop started by Start to finish.
func (c *Collector) Close() {
	<-c.done
}

// Flush publishes everything buffered so far.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("batch flush failed",
			"batch_size", len(batch),
			"error", err,
		)
		c.count("failed", len(batch))
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[dropped:]
			c.count("dropped", dropped)
			c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.count("published", len(batch))
	c.logger.Debug("batch flushed", "events", len(batch))
}

func (c *Collector) count(status string, n int) {
	if c.metrics != nil {
		c.metrics.EventsPublishedTotal.WithLabelValues(status).Add(float64(n))
	}
}
