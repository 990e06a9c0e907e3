package save

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/linkforge/link-shortener/internal/canonical"
	"github.com/linkforge/link-shortener/internal/kafka"
	resp "github.com/linkforge/link-shortener/internal/lib/api/response"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/shortener"
	"github.com/linkforge/link-shortener/internal/storage"
)

type Request struct {
	URL        string     `json:"url" validate:"required"`
	CustomCode string     `json:"custom_code,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MaxClicks  *int64     `json:"max_clicks,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
}

type Response struct {
	resp.Response
	Code         string    `json:"code"`
	CanonicalURL string    `json:"canonical_url"`
	CreatedAt    time.Time `json:"created_at"`
	IsNew        bool      `json:"is_new"`
}

type LinkCreator interface {
	CreateOrReuse(ctx context.Context, workspaceID int64, rawURL string, opts shortener.CreateOptions) (shortener.CreateResult, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

func New(log *slog.Logger, creator LinkCreator, producer Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.save.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		workspaceID, err := strconv.ParseInt(chi.URLParam(r, "workspace_id"), 10, 64)
		if err != nil {
			log.Error("invalid workspace id", sl.Err(err))
			resp.NewJSON(w, r, http.StatusBadRequest, resp.Error("invalid workspace id"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			resp.NewJSON(w, r, http.StatusBadRequest, resp.Error("invalid request body"))
			return
		}

		if err := validator.New().Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Error("invalid request", sl.Err(err))
			resp.NewJSON(w, r, http.StatusBadRequest, resp.ValidationError(validateErr))
			return
		}

		result, err := creator.CreateOrReuse(r.Context(), workspaceID, req.URL, shortener.CreateOptions{
			CustomCode: req.CustomCode,
			ExpiresAt:  req.ExpiresAt,
			MaxClicks:  req.MaxClicks,
			Tags:       req.Tags,
			CreatedBy:  req.CreatedBy,
		})
		if err != nil {
			switch {
			case errors.Is(err, canonical.ErrInvalidURL):
				log.Info("rejected invalid url", sl.Err(err))
				resp.NewJSON(w, r, http.StatusBadRequest, resp.Error("invalid url"))
			case errors.Is(err, storage.ErrWorkspaceNotFound),
				errors.Is(err, shortener.ErrWorkspaceInactive):
				log.Info("unknown workspace", slog.Int64("workspace_id", workspaceID))
				resp.NewJSON(w, r, http.StatusNotFound, resp.Error("workspace not found"))
			case errors.Is(err, shortener.ErrInvalidCustomCode):
				resp.NewJSON(w, r, http.StatusBadRequest, resp.Error("invalid custom code"))
			case errors.Is(err, shortener.ErrCustomCodeTaken):
				resp.NewJSON(w, r, http.StatusConflict, resp.Error("custom code already taken"))
			case errors.Is(err, shortener.ErrCollisionExhausted):
				log.Error("collision retries exhausted", sl.Err(err))
				resp.NewJSON(w, r, http.StatusInternalServerError, resp.Error("failed to add link"))
			default:
				log.Error("failed to add link", sl.Err(err))
				resp.NewJSON(w, r, http.StatusInternalServerError, resp.Error("failed to add link"))
			}
			return
		}

		if result.IsNew && producer != nil {
			ev := kafka.AuditEvent{
				Type:        kafka.EventLinkSaved,
				WorkspaceID: workspaceID,
				LinkID:      result.Link.ID,
				Code:        result.Link.Code,
				Timestamp:   time.Now().UTC().Format(time.RFC3339),
			}
			if err := producer.Publish(r.Context(), result.Link.Code, ev); err != nil {
				log.Error("failed to publish audit event", sl.Err(err))
			}
		}

		log.Info("link ready",
			slog.Int64("id", result.Link.ID),
			slog.String("code", result.Link.Code),
			slog.Bool("is_new", result.IsNew),
		)

		resp.NewJSON(w, r, http.StatusOK, Response{
			Response:     resp.OK(),
			Code:         result.Link.Code,
			CanonicalURL: result.Link.NormalizedURL,
			CreatedAt:    result.Link.CreatedAt,
			IsNew:        result.IsNew,
		})
	}
}
