package clickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/linkforge/link-shortener/internal/models"
)

// Sink writes click events in batches. Rows are append-only.
type Sink struct {
	conn clickhouse.Conn
}

func NewSink(conn clickhouse.Conn) *Sink {
	return &Sink{conn: conn}
}

func (s *Sink) InsertClickEvents(ctx context.Context, events []models.ClickEvent) error {
	batch, err := s.conn.PrepareBatch(ctx,
		`INSERT INTO click_events
		 (event_id, link_id, workspace_id, ts, ip, user_agent, referer,
		  country, city, device, browser, os, schema_version)`,
	)
	if err != nil {
		return err
	}

	for _, e := range events {
		err := batch.Append(
			e.EventID,
			uint64(e.LinkID),
			uint64(e.WorkspaceID),
			e.Timestamp,
			e.IP,
			e.UserAgent,
			e.Referer,
			e.Country,
			e.City,
			e.Device,
			e.Browser,
			e.OS,
			uint8(e.SchemaVersion),
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}
