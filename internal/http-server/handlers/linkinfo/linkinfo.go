package linkinfo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	resp "github.com/linkforge/link-shortener/internal/lib/api/response"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/storage"
)

type Response struct {
	resp.Response
	Code         string     `json:"code"`
	OriginalURL  string     `json:"original_url"`
	CanonicalURL string     `json:"canonical_url"`
	ClickCount   int64      `json:"click_count"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxClicks    *int64     `json:"max_clicks,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type LinkGetter interface {
	GetLink(ctx context.Context, workspaceID int64, code string) (models.ShortLink, error)
}

// New returns link metadata without counting a click.
func New(log *slog.Logger, getter LinkGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.linkinfo.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		workspaceID, err := strconv.ParseInt(chi.URLParam(r, "workspace_id"), 10, 64)
		if err != nil {
			resp.NewJSON(w, r, http.StatusBadRequest, resp.Error("invalid workspace id"))
			return
		}

		code := chi.URLParam(r, "code")

		link, err := getter.GetLink(r.Context(), workspaceID, code)
		if err != nil {
			if errors.Is(err, storage.ErrLinkNotFound) {
				resp.NewJSON(w, r, http.StatusNotFound, resp.Error("link not found"))
				return
			}
			log.Error("failed to get link", sl.Err(err))
			resp.NewJSON(w, r, http.StatusInternalServerError, resp.Error("internal error"))
			return
		}

		resp.NewJSON(w, r, http.StatusOK, Response{
			Response:     resp.OK(),
			Code:         link.Code,
			OriginalURL:  link.OriginalURL,
			CanonicalURL: link.NormalizedURL,
			ClickCount:   link.ClickCount,
			ExpiresAt:    link.ExpiresAt,
			MaxClicks:    link.MaxClicks,
			Tags:         link.Tags,
			CreatedAt:    link.CreatedAt,
		})
	}
}
