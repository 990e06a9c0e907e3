package clicks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linkforge/link-shortener/internal/config"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/storage"
)

type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type LinkStore interface {
	GetLinkByID(ctx context.Context, id int64) (models.ShortLink, error)
}

type EventSink interface {
	InsertClickEvents(ctx context.Context, events []models.ClickEvent) error
}

// Consumer reads click events in a named group, buffers them, flushes
// batches into the sink and only then commits offsets. Delivery is
// at-least-once: a crash between flush and commit replays the batch,
// and duplicates are acceptable downstream.
type Consumer struct {
	fetcher Fetcher
	links   LinkStore
	sink    EventSink
	dlq     Publisher
	log     *slog.Logger

	maxBatchSize int
	maxBatchAge  time.Duration
	maxAttempts  int
	backoff      time.Duration

	buf       []models.ClickEvent
	pending   []kafka.Message
	lastFlush time.Time

	persisted    atomic.Int64
	unresolved   atomic.Int64
	deadLettered atomic.Int64
}

func NewConsumer(
	fetcher Fetcher,
	links LinkStore,
	sink EventSink,
	dlq Publisher,
	cfg config.ConsumerConfig,
	log *slog.Logger,
) *Consumer {
	return &Consumer{
		fetcher:      fetcher,
		links:        links,
		sink:         sink,
		dlq:          dlq,
		log:          log,
		maxBatchSize: cfg.MaxBatchSize,
		maxBatchAge:  cfg.MaxBatchAge,
		maxAttempts:  cfg.MaxAttempts,
		backoff:      cfg.RetryBackoff,
	}
}

// Run blocks until ctx is cancelled, flushing a final partial batch on
// the way out.
func (c *Consumer) Run(ctx context.Context) error {
	const op = "clicks.Consumer.Run"

	c.lastFlush = time.Now()

	for {
		// cap the fetch so an idle topic still flushes on age
		fetchCtx, cancel := context.WithDeadline(ctx, c.lastFlush.Add(c.maxBatchAge))
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
				if ferr := c.flush(context.Background()); ferr != nil {
					c.log.Error("final flush failed", slog.String("op", op), sl.Err(ferr))
				}
				c.log.Info("consumer stopped")
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				if ferr := c.flush(ctx); ferr != nil {
					return ferr
				}
				continue
			case errors.Is(err, io.EOF):
				c.log.Info("consumer reader closed")
				return nil
			default:
				c.log.Error("kafka fetch error", slog.String("op", op), sl.Err(err))
				continue
			}
		}

		c.handleMessage(ctx, msg)

		if len(c.buf) >= c.maxBatchSize || time.Since(c.lastFlush) >= c.maxBatchAge {
			if err := c.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	const op = "clicks.Consumer.handleMessage"

	var event models.ClickEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// malformed payloads can never succeed, ack and move on
		c.log.Error("could not parse click event", slog.String("op", op), sl.Err(err))
		c.ackOutOfBand(ctx, msg)
		return
	}

	// soft-deleted links still resolve here: their events are kept for
	// historical analytics
	_, err := c.resolveLink(ctx, event.LinkID)
	switch {
	case errors.Is(err, storage.ErrLinkNotFound):
		c.unresolved.Add(1)
		c.log.Warn("click event references unknown link",
			slog.String("op", op),
			slog.String("event_id", event.EventID),
			slog.Int64("link_id", event.LinkID),
		)
		// ack anyway: this event is permanently unresolvable and must
		// not be reprocessed forever
		c.ackOutOfBand(ctx, msg)
		return
	case err != nil:
		// drain the batch before the dead-letter path commits this
		// message; see ackOutOfBand
		if ferr := c.flush(ctx); ferr != nil {
			c.log.Error("flush before dead-letter failed", slog.String("op", op), sl.Err(ferr))
			return
		}
		c.deadLetter(ctx, msg, event)
		return
	}

	c.buf = append(c.buf, event)
	c.pending = append(c.pending, msg)
}

// resolveLink retries transient lookup failures with backoff; a clean
// not-found is returned immediately.
func (c *Consumer) resolveLink(ctx context.Context, id int64) (models.ShortLink, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		link, err := c.links.GetLinkByID(ctx, id)
		if err == nil {
			return link, nil
		}
		if errors.Is(err, storage.ErrLinkNotFound) {
			return models.ShortLink{}, err
		}

		lastErr = err
		select {
		case <-ctx.Done():
			return models.ShortLink{}, ctx.Err()
		case <-time.After(c.backoff):
		}
	}

	return models.ShortLink{}, lastErr
}

// flush persists the buffered batch and commits its offsets. On an
// exhausted retry budget the whole batch is routed to the dead-letter
// topic instead of blocking the partition.
func (c *Consumer) flush(ctx context.Context) error {
	const op = "clicks.Consumer.flush"

	defer func() { c.lastFlush = time.Now() }()

	if len(c.buf) == 0 {
		return nil
	}

	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		err := c.sink.InsertClickEvents(ctx, c.buf)
		if err != nil {
			lastErr = err
			c.log.Error("batch insert failed",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				sl.Err(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.fetcher.CommitMessages(ctx, c.pending...); err != nil {
			// the batch is already durable; a replay after restart just
			// produces duplicates, which at-least-once allows
			c.log.Error("offset commit failed", slog.String("op", op), sl.Err(err))
		}

		c.persisted.Add(int64(len(c.buf)))
		c.log.Info("batch flushed", slog.Int("events", len(c.buf)))
		c.buf = c.buf[:0]
		c.pending = c.pending[:0]
		return nil
	}

	c.log.Error("flush retries exhausted, dead-lettering batch",
		slog.String("op", op),
		slog.Int("events", len(c.buf)),
		sl.Err(lastErr),
	)
	for i, event := range c.buf {
		c.deadLetter(ctx, c.pending[i], event)
	}
	c.buf = c.buf[:0]
	c.pending = c.pending[:0]

	return nil
}

// deadLetter publishes the event to the DLQ topic and only then acks
// the original message. If even the DLQ is down the message stays
// uncommitted and will be redelivered.
func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, event models.ClickEvent) {
	const op = "clicks.Consumer.deadLetter"

	key := strconv.FormatInt(event.LinkID, 10)
	if err := c.dlq.Publish(ctx, key, event); err != nil {
		c.log.Error("dead-letter publish failed, leaving message uncommitted",
			slog.String("op", op),
			slog.String("event_id", event.EventID),
			sl.Err(err),
		)
		return
	}

	c.deadLettered.Add(1)
	c.ack(ctx, msg)
}

// ackOutOfBand commits a message that skips the batch. The group
// offset is a per-partition high-water mark, so committing this
// message would implicitly commit every buffered message before it;
// the pending batch must be flushed first or those events could be
// lost to a crash. On flush failure the message stays uncommitted and
// is redelivered.
func (c *Consumer) ackOutOfBand(ctx context.Context, msg kafka.Message) {
	const op = "clicks.Consumer.ackOutOfBand"

	if err := c.flush(ctx); err != nil {
		c.log.Error("flush before ack failed", slog.String("op", op), sl.Err(err))
		return
	}

	c.ack(ctx, msg)
}

func (c *Consumer) ack(ctx context.Context, msg kafka.Message) {
	if err := c.fetcher.CommitMessages(ctx, msg); err != nil {
		c.log.Error("failed to commit message", sl.Err(err))
	}
}

func (c *Consumer) Persisted() int64    { return c.persisted.Load() }
func (c *Consumer) Unresolved() int64   { return c.unresolved.Load() }
func (c *Consumer) DeadLettered() int64 { return c.deadLettered.Load() }
