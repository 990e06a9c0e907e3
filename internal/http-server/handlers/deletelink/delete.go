package deletelink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linkforge/link-shortener/internal/kafka"
	resp "github.com/linkforge/link-shortener/internal/lib/api/response"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/storage"
)

type LinkDeleter interface {
	Delete(ctx context.Context, workspaceID int64, code string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

func New(log *slog.Logger, deleter LinkDeleter, producer Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.deletelink.New"

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
		if code == "" {
			log.Error("code is empty")
			resp.NewJSON(w, r, http.StatusBadRequest, resp.Error("code is empty"))
			return
		}

		err = deleter.Delete(r.Context(), workspaceID, code)
		switch {
		case err == nil:
			log.Info("link deleted", slog.String("code", code))

			if producer != nil {
				ev := kafka.AuditEvent{
					Type:        kafka.EventLinkDeleted,
					WorkspaceID: workspaceID,
					Code:        code,
					Timestamp:   time.Now().UTC().Format(time.RFC3339),
				}
				if err := producer.Publish(r.Context(), code, ev); err != nil {
					log.Error("failed to publish audit event", sl.Err(err))
				}
			}

			resp.NewJSON(w, r, http.StatusOK, resp.OK())
		case errors.Is(err, storage.ErrLinkNotFound):
			log.Info("link not found", slog.String("code", code))
			resp.NewJSON(w, r, http.StatusNotFound, resp.Error("link not found"))
		default:
			log.Error("unexpected error", sl.Err(err))
			resp.NewJSON(w, r, http.StatusInternalServerError, resp.Error("unexpected error"))
		}
	}
}
