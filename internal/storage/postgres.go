package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/linkforge/link-shortener/internal/config"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/models"
)

// Constraint names from migrations/000001_init.up.sql; insert
// violations are mapped back to sentinels by these names.
const (
	constraintWorkspaceCode = "short_links_workspace_code_idx"
	constraintWorkspaceURL  = "short_links_workspace_url_idx"
)

type Storage struct {
	DB *sql.DB
}

// NewStorage blocks until postgres is reachable or panics after a
// minute, same as the rest of the boot sequence.
func NewStorage(ctx context.Context, cfg config.PostgresStorage, log *slog.Logger) *Storage {
	ctx, cancel := context.WithTimeout(ctx, time.Second*60)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			panic("timeout waiting for postgresql")
		case <-ticker.C:
			conn, err := connect(cfg)
			if err == nil {
				log.Info("postgresql connected successfully")
				return conn
			}
			log.Error("postgresql not ready, retrying...", sl.Err(err))
		}
	}
}

func connect(cfg config.PostgresStorage) (*Storage, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DbName,
		cfg.SslMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgresql connection error: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgresql ping failed: %w", err)
	}

	return &Storage{DB: db}, nil
}

func (s *Storage) GetWorkspace(ctx context.Context, id int64) (models.Workspace, error) {
	const op = "storage.postgres.GetWorkspace"

	var ws models.Workspace

	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, deleted FROM workspaces WHERE id = $1`, id,
	).Scan(&ws.ID, &ws.Name, &ws.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workspace{}, ErrWorkspaceNotFound
	}
	if err != nil {
		return models.Workspace{}, fmt.Errorf("%s: %w", op, err)
	}

	return ws, nil
}

const linkColumns = `id, workspace_id, code, original_url, normalized_url, created_by,
	expires_at, max_clicks, tags, click_count, deleted, created_at`

// SaveLink inserts a new link. The partial unique indexes enforce both
// identity invariants atomically, so two concurrent creators cannot
// both win: the loser gets ErrCodeExists or ErrURLExists and the
// resolver reinterprets it.
func (s *Storage) SaveLink(ctx context.Context, link models.ShortLink) (models.ShortLink, error) {
	const op = "storage.postgres.SaveLink"

	query := `INSERT INTO short_links
		(workspace_id, code, original_url, normalized_url, created_by, expires_at, max_clicks, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := s.DB.QueryRowContext(ctx, query,
		link.WorkspaceID,
		link.Code,
		link.OriginalURL,
		link.NormalizedURL,
		link.CreatedBy,
		link.ExpiresAt,
		link.MaxClicks,
		pq.Array(link.Tags),
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case constraintWorkspaceCode:
				return models.ShortLink{}, ErrCodeExists
			case constraintWorkspaceURL:
				return models.ShortLink{}, ErrURLExists
			}
		}
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

func (s *Storage) GetLinkByCode(ctx context.Context, workspaceID int64, code string) (models.ShortLink, error) {
	const op = "storage.postgres.GetLinkByCode"

	query := `SELECT ` + linkColumns + ` FROM short_links
		WHERE workspace_id = $1 AND code = $2 AND NOT deleted`

	link, err := scanLink(s.DB.QueryRowContext(ctx, query, workspaceID, code))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ShortLink{}, ErrLinkNotFound
	}
	if err != nil {
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

func (s *Storage) GetLinkByURL(ctx context.Context, workspaceID int64, normalizedURL string) (models.ShortLink, error) {
	const op = "storage.postgres.GetLinkByURL"

	query := `SELECT ` + linkColumns + ` FROM short_links
		WHERE workspace_id = $1 AND normalized_url = $2 AND NOT deleted`

	link, err := scanLink(s.DB.QueryRowContext(ctx, query, workspaceID, normalizedURL))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ShortLink{}, ErrLinkNotFound
	}
	if err != nil {
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

// GetLinkByID also returns soft-deleted links: the analytics consumer
// needs them to persist events for links deleted after publish.
func (s *Storage) GetLinkByID(ctx context.Context, id int64) (models.ShortLink, error) {
	const op = "storage.postgres.GetLinkByID"

	query := `SELECT ` + linkColumns + ` FROM short_links WHERE id = $1`

	link, err := scanLink(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ShortLink{}, ErrLinkNotFound
	}
	if err != nil {
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

// IncrementClicks bumps the click counter atomically in the database.
// A load-mutate-save on a cached copy would lose counts under
// concurrent redirects.
func (s *Storage) IncrementClicks(ctx context.Context, id int64) (int64, error) {
	const op = "storage.postgres.IncrementClicks"

	var count int64

	err := s.DB.QueryRowContext(ctx,
		`UPDATE short_links SET click_count = click_count + 1
		 WHERE id = $1 AND NOT deleted
		 RETURNING click_count`, id,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrLinkNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

// DeleteLink soft-deletes: rows are kept for analytics history.
func (s *Storage) DeleteLink(ctx context.Context, workspaceID int64, code string) error {
	const op = "storage.postgres.DeleteLink"

	result, err := s.DB.ExecContext(ctx,
		`UPDATE short_links SET deleted = TRUE
		 WHERE workspace_id = $1 AND code = $2 AND NOT deleted`,
		workspaceID, code,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rowsAffected == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func scanLink(row *sql.Row) (models.ShortLink, error) {
	var link models.ShortLink

	err := row.Scan(
		&link.ID,
		&link.WorkspaceID,
		&link.Code,
		&link.OriginalURL,
		&link.NormalizedURL,
		&link.CreatedBy,
		&link.ExpiresAt,
		&link.MaxClicks,
		pq.Array(&link.Tags),
		&link.ClickCount,
		&link.Deleted,
		&link.CreatedAt,
	)
	if err != nil {
		return models.ShortLink{}, err
	}

	return link, nil
}
