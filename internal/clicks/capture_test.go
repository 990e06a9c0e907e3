package clicks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkforge/link-shortener/internal/lib/logger/handlers/slogdiscard"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/useragent"
)

type fakePublisher struct {
	err   error
	block time.Duration

	keys   []string
	events []models.ClickEvent
}

func (p *fakePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	if p.block > 0 {
		select {
		case <-time.After(p.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, value.(models.ClickEvent))
	return nil
}

var testLink = models.ShortLink{
	ID:          42,
	WorkspaceID: 7,
	Code:        "Ab3dEf9h",
	OriginalURL: "https://example.com/page",
}

func TestBuildEvent(t *testing.T) {
	meta := RequestMeta{
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		Referer:   "https://social.example/post/1",
		Country:   "DE",
		City:      "Berlin",
	}

	event := BuildEvent(testLink, meta)

	_, err := uuid.Parse(event.EventID)
	require.NoError(t, err)

	assert.Equal(t, testLink.ID, event.LinkID)
	assert.Equal(t, testLink.WorkspaceID, event.WorkspaceID)
	assert.Equal(t, meta.IP, event.IP)
	assert.Equal(t, meta.Referer, event.Referer)
	assert.Equal(t, "DE", event.Country)
	assert.Equal(t, "Safari", event.Browser)
	assert.Equal(t, "iOS", event.OS)
	assert.Equal(t, useragent.DeviceMobile, event.Device)
	assert.Equal(t, models.ClickEventSchemaVersion, event.SchemaVersion)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Minute)

	other := BuildEvent(testLink, meta)
	assert.NotEqual(t, event.EventID, other.EventID, "event ids must be unique")
}

func TestRecord_PublishesWithLinkIDKey(t *testing.T) {
	producer := &fakePublisher{}
	capture := NewCapture(slogdiscard.NewDiscardLogger(), producer, nil, time.Second)

	capture.Record(testLink, RequestMeta{IP: "203.0.113.7"})
	capture.Wait()

	require.Len(t, producer.keys, 1)
	assert.Equal(t, "42", producer.keys[0])
	assert.EqualValues(t, 1, capture.Published())
	assert.EqualValues(t, 0, capture.Failed())
}

func TestRecord_DoesNotBlockCaller(t *testing.T) {
	// producer hangs far longer than the caller is willing to wait
	producer := &fakePublisher{block: 5 * time.Second, err: errors.New("broker unreachable")}
	capture := NewCapture(slogdiscard.NewDiscardLogger(), producer, nil, 50*time.Millisecond)

	start := time.Now()
	capture.Record(testLink, RequestMeta{})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond, "Record must return immediately")

	capture.Wait()
	assert.EqualValues(t, 1, capture.Failed())
}

func TestRecord_FallsBackToDeadLetter(t *testing.T) {
	producer := &fakePublisher{err: errors.New("partition unavailable")}
	dlq := &fakePublisher{}
	capture := NewCapture(slogdiscard.NewDiscardLogger(), producer, dlq, time.Second)

	capture.Record(testLink, RequestMeta{})
	capture.Wait()

	require.Len(t, dlq.events, 1)
	assert.EqualValues(t, 1, capture.Failed())
	assert.EqualValues(t, 0, capture.Dropped(), "dead-lettered events are not dropped")
}

func TestRecord_DropsWhenDeadLetterFails(t *testing.T) {
	producer := &fakePublisher{err: errors.New("broker down")}
	dlq := &fakePublisher{err: errors.New("broker down")}
	capture := NewCapture(slogdiscard.NewDiscardLogger(), producer, dlq, time.Second)

	capture.Record(testLink, RequestMeta{})
	capture.Wait()

	assert.EqualValues(t, 1, capture.Failed())
	assert.EqualValues(t, 1, capture.Dropped())
}
