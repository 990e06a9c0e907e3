// Package shortener orchestrates canonicalization, dedup lookup, code
// generation with collision retry and persistence.
package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/linkforge/link-shortener/internal/canonical"
	"github.com/linkforge/link-shortener/internal/config"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/shortcode"
	"github.com/linkforge/link-shortener/internal/storage"
)

var (
	ErrCollisionExhausted     = errors.New("could not find a free code after all retries")
	ErrWorkspaceInactive      = errors.New("workspace is inactive")
	ErrLinkExpired            = errors.New("link expired")
	ErrLinkExceededClickLimit = errors.New("link exceeded click limit")
	ErrInvalidCustomCode      = errors.New("invalid custom code")
	ErrCustomCodeTaken        = errors.New("custom code already taken")
)

var customCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)

type Storage interface {
	GetWorkspace(ctx context.Context, id int64) (models.Workspace, error)
	SaveLink(ctx context.Context, link models.ShortLink) (models.ShortLink, error)
	GetLinkByCode(ctx context.Context, workspaceID int64, code string) (models.ShortLink, error)
	GetLinkByURL(ctx context.Context, workspaceID int64, normalizedURL string) (models.ShortLink, error)
	IncrementClicks(ctx context.Context, id int64) (int64, error)
	DeleteLink(ctx context.Context, workspaceID int64, code string) error
}

type LinkCache interface {
	Get(ctx context.Context, workspaceID int64, code string) (models.ShortLink, bool)
	Set(ctx context.Context, link models.ShortLink)
	Delete(ctx context.Context, workspaceID int64, code string)
}

// GenerateFunc produces a code for (canonical url, workspace, salt).
// Injectable so collision behavior is testable with engineered digests.
type GenerateFunc func(canonicalURL string, workspaceID int64, salt int) (string, error)

type Service struct {
	log        *slog.Logger
	storage    Storage
	cache      LinkCache
	generate   GenerateFunc
	maxRetries int
}

// CreateOptions are the caller-supplied knobs for a new link. A custom
// code bypasses generation but still goes through the same atomic
// uniqueness check.
type CreateOptions struct {
	CustomCode string
	ExpiresAt  *time.Time
	MaxClicks  *int64
	Tags       []string
	CreatedBy  string
}

type CreateResult struct {
	Link  models.ShortLink
	IsNew bool
}

func New(log *slog.Logger, st Storage, cache LinkCache, cfg config.ShortenerConfig) *Service {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}

	codeLength := cfg.CodeLength
	if codeLength <= 0 {
		codeLength = shortcode.DefaultLength
	}

	return &Service{
		log:     log,
		storage: st,
		cache:   cache,
		generate: func(canonicalURL string, workspaceID int64, salt int) (string, error) {
			return shortcode.GenerateN(canonicalURL, workspaceID, salt, codeLength)
		},
		maxRetries: maxRetries,
	}
}

// WithGenerator swaps the code generator; tests use it to inject
// digest collisions.
func (s *Service) WithGenerator(generate GenerateFunc) *Service {
	s.generate = generate
	return s
}

// CreateOrReuse returns the existing link when the workspace already
// shortened the same canonical URL, otherwise creates one. The same
// URL in the same workspace always yields the same code, regardless of
// who calls or how often.
func (s *Service) CreateOrReuse(ctx context.Context, workspaceID int64, rawURL string, opts CreateOptions) (CreateResult, error) {
	const op = "shortener.CreateOrReuse"

	normalized, err := canonical.Canonicalize(rawURL)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%s: %w", op, err)
	}

	ws, err := s.storage.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if ws.Deleted {
		return CreateResult{}, fmt.Errorf("%s: %w", op, ErrWorkspaceInactive)
	}

	existing, err := s.storage.GetLinkByURL(ctx, workspaceID, normalized)
	if err == nil {
		return CreateResult{Link: existing, IsNew: false}, nil
	}
	if !errors.Is(err, storage.ErrLinkNotFound) {
		return CreateResult{}, fmt.Errorf("%s: %w", op, err)
	}

	link := models.ShortLink{
		WorkspaceID:   workspaceID,
		OriginalURL:   rawURL,
		NormalizedURL: normalized,
		CreatedBy:     opts.CreatedBy,
		ExpiresAt:     opts.ExpiresAt,
		MaxClicks:     opts.MaxClicks,
		Tags:          opts.Tags,
	}

	if opts.CustomCode != "" {
		return s.createWithCustomCode(ctx, link, opts.CustomCode)
	}

	return s.createWithGeneratedCode(ctx, link)
}

func (s *Service) createWithCustomCode(ctx context.Context, link models.ShortLink, code string) (CreateResult, error) {
	const op = "shortener.createWithCustomCode"

	if !customCodeRegex.MatchString(code) {
		return CreateResult{}, fmt.Errorf("%s: %w", op, ErrInvalidCustomCode)
	}

	link.Code = code

	saved, err := s.storage.SaveLink(ctx, link)
	switch {
	case err == nil:
		return CreateResult{Link: saved, IsNew: true}, nil
	case errors.Is(err, storage.ErrURLExists):
		// concurrent creator won with the same canonical URL
		winner, werr := s.storage.GetLinkByURL(ctx, link.WorkspaceID, link.NormalizedURL)
		if werr != nil {
			return CreateResult{}, fmt.Errorf("%s: %w", op, werr)
		}
		return CreateResult{Link: winner, IsNew: false}, nil
	case errors.Is(err, storage.ErrCodeExists):
		owner, werr := s.storage.GetLinkByCode(ctx, link.WorkspaceID, code)
		if werr == nil && owner.NormalizedURL == link.NormalizedURL {
			return CreateResult{Link: owner, IsNew: false}, nil
		}
		return CreateResult{}, fmt.Errorf("%s: %w", op, ErrCustomCodeTaken)
	default:
		return CreateResult{}, fmt.Errorf("%s: %w", op, err)
	}
}

// createWithGeneratedCode runs the salt loop. Uniqueness is enforced
// by the storage layer's conditional insert: a rejected insert is
// reinterpreted as either a race (same URL, idempotent return) or a
// true collision (different URL, next salt), never surfaced raw.
func (s *Service) createWithGeneratedCode(ctx context.Context, link models.ShortLink) (CreateResult, error) {
	const op = "shortener.createWithGeneratedCode"

	for salt := 0; salt < s.maxRetries; salt++ {
		code, err := s.generate(link.NormalizedURL, link.WorkspaceID, salt)
		if err != nil {
			return CreateResult{}, fmt.Errorf("%s: %w", op, err)
		}

		owner, err := s.storage.GetLinkByCode(ctx, link.WorkspaceID, code)
		switch {
		case err == nil && owner.NormalizedURL == link.NormalizedURL:
			// another creator already won the race for this URL
			return CreateResult{Link: owner, IsNew: false}, nil
		case err == nil:
			// true collision: different URL owns this code
			continue
		case !errors.Is(err, storage.ErrLinkNotFound):
			return CreateResult{}, fmt.Errorf("%s: %w", op, err)
		}

		link.Code = code

		saved, err := s.storage.SaveLink(ctx, link)
		switch {
		case err == nil:
			return CreateResult{Link: saved, IsNew: true}, nil
		case errors.Is(err, storage.ErrURLExists):
			winner, werr := s.storage.GetLinkByURL(ctx, link.WorkspaceID, link.NormalizedURL)
			if werr != nil {
				return CreateResult{}, fmt.Errorf("%s: %w", op, werr)
			}
			return CreateResult{Link: winner, IsNew: false}, nil
		case errors.Is(err, storage.ErrCodeExists):
			owner, werr := s.storage.GetLinkByCode(ctx, link.WorkspaceID, code)
			if werr == nil && owner.NormalizedURL == link.NormalizedURL {
				return CreateResult{Link: owner, IsNew: false}, nil
			}
			// concurrent insert of a different URL under this code
			continue
		default:
			return CreateResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Error("code collision retries exhausted",
		slog.Int64("workspace_id", link.WorkspaceID),
		slog.String("normalized_url", link.NormalizedURL),
		slog.Int("max_retries", s.maxRetries),
	)

	return CreateResult{}, fmt.Errorf("%s: %w", op, ErrCollisionExhausted)
}

// Resolve is the redirect hot path: cache-first lookup, expiry and
// click-limit checks, then an atomic counter bump in postgres. The
// returned link carries the fresh click count.
func (s *Service) Resolve(ctx context.Context, workspaceID int64, code string) (models.ShortLink, error) {
	const op = "shortener.Resolve"

	link, cached := s.cacheGet(ctx, workspaceID, code)
	if !cached {
		var err error
		link, err = s.storage.GetLinkByCode(ctx, workspaceID, code)
		if err != nil {
			return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
		}
		s.cacheSet(ctx, link)
	}

	if link.ExpiresAt != nil && time.Now().After(*link.ExpiresAt) {
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, ErrLinkExpired)
	}

	count, err := s.storage.IncrementClicks(ctx, link.ID)
	if err != nil {
		if errors.Is(err, storage.ErrLinkNotFound) {
			// deleted between lookup and increment, treat as gone
			s.cacheDelete(ctx, workspaceID, code)
			return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
		}
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
	}
	link.ClickCount = count

	if link.MaxClicks != nil && count > *link.MaxClicks {
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, ErrLinkExceededClickLimit)
	}

	return link, nil
}

// GetLink returns link metadata without counting a click.
func (s *Service) GetLink(ctx context.Context, workspaceID int64, code string) (models.ShortLink, error) {
	const op = "shortener.GetLink"

	link, err := s.storage.GetLinkByCode(ctx, workspaceID, code)
	if err != nil {
		return models.ShortLink{}, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

// Delete soft-deletes the link and drops it from the cache. History
// stays in place for analytics.
func (s *Service) Delete(ctx context.Context, workspaceID int64, code string) error {
	const op = "shortener.Delete"

	if err := s.storage.DeleteLink(ctx, workspaceID, code); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.cacheDelete(ctx, workspaceID, code)

	return nil
}

func (s *Service) cacheGet(ctx context.Context, workspaceID int64, code string) (models.ShortLink, bool) {
	if s.cache == nil {
		return models.ShortLink{}, false
	}
	return s.cache.Get(ctx, workspaceID, code)
}

func (s *Service) cacheSet(ctx context.Context, link models.ShortLink) {
	if s.cache != nil {
		s.cache.Set(ctx, link)
	}
}

func (s *Service) cacheDelete(ctx context.Context, workspaceID int64, code string) {
	if s.cache != nil {
		s.cache.Delete(ctx, workspaceID, code)
	}
}
