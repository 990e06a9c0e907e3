// Package clicks implements the click analytics pipeline: capture on
// the redirect path, asynchronous publish to a partitioned topic, and
// a consumer that persists events durably with explicit acks.
package clicks

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/useragent"
)

type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// RequestMeta is what the redirect handler extracts from the incoming
// request. Country and city come from edge headers when present.
type RequestMeta struct {
	IP        string
	UserAgent string
	Referer   string
	Country   string
	City      string
}

// Capture builds click events synchronously and publishes them in the
// background. The redirect response never waits on the publish
// outcome: a dead broker costs the caller nothing but a counter bump.
type Capture struct {
	log      *slog.Logger
	producer Publisher
	dlq      Publisher
	timeout  time.Duration

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg sync.WaitGroup
}

func NewCapture(log *slog.Logger, producer, dlq Publisher, timeout time.Duration) *Capture {
	return &Capture{
		log:      log,
		producer: producer,
		dlq:      dlq,
		timeout:  timeout,
	}
}

// BuildEvent assembles the event record, including the user-agent
// classification. The event id is assigned here, at the producer, so
// it survives redelivery unchanged.
func BuildEvent(link models.ShortLink, meta RequestMeta) models.ClickEvent {
	ua := useragent.Classify(meta.UserAgent)

	return models.ClickEvent{
		EventID:       uuid.NewString(),
		LinkID:        link.ID,
		WorkspaceID:   link.WorkspaceID,
		Timestamp:     time.Now().UTC(),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		Referer:       meta.Referer,
		Country:       meta.Country,
		City:          meta.City,
		Device:        ua.Device,
		Browser:       ua.Browser,
		OS:            ua.OS,
		SchemaVersion: models.ClickEventSchemaVersion,
	}
}

// Record is fire-and-forget: it builds the event and returns. The
// publish runs in its own goroutine with its own timeout context.
func (c *Capture) Record(link models.ShortLink, meta RequestMeta) {
	event := BuildEvent(link, meta)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.publish(event)
	}()
}

func (c *Capture) publish(event models.ClickEvent) {
	const op = "clicks.Capture.publish"

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	// partition key = link id, per-link ordering
	key := strconv.FormatInt(event.LinkID, 10)

	err := c.producer.Publish(ctx, key, event)
	if err == nil {
		c.published.Add(1)
		return
	}

	c.failed.Add(1)
	c.log.Error("failed to publish click event",
		slog.String("op", op),
		slog.String("event_id", event.EventID),
		sl.Err(err),
	)

	if c.dlq != nil {
		if err := c.dlq.Publish(ctx, key, event); err == nil {
			return
		}
	}

	// best effort exhausted, the event is gone; the redirect itself
	// is the source of truth for the click counter
	c.dropped.Add(1)
	c.log.Error("click event dropped",
		slog.String("op", op),
		slog.String("event_id", event.EventID),
	)
}

// Wait drains in-flight publishes; used on shutdown and in tests.
func (c *Capture) Wait() {
	c.wg.Wait()
}

func (c *Capture) Published() int64 { return c.published.Load() }
func (c *Capture) Failed() int64    { return c.failed.Load() }
func (c *Capture) Dropped() int64   { return c.dropped.Load() }
