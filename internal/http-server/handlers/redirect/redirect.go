package redirect

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linkforge/link-shortener/internal/clicks"
	resp "github.com/linkforge/link-shortener/internal/lib/api/response"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/shortener"
	"github.com/linkforge/link-shortener/internal/storage"
)

type LinkResolver interface {
	Resolve(ctx context.Context, workspaceID int64, code string) (models.ShortLink, error)
}

type ClickRecorder interface {
	Record(link models.ShortLink, meta clicks.RequestMeta)
}

// Redirect resolves the code and answers 302. The click event hand-off
// is fire-and-forget: a broken pipeline never delays or fails the
// redirect.
func Redirect(log *slog.Logger, resolver LinkResolver, recorder ClickRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.redirect.Redirect"

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

		link, err := resolver.Resolve(r.Context(), workspaceID, code)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrLinkNotFound):
				log.Info("link not found", slog.String("code", code))
				resp.NewJSON(w, r, http.StatusNotFound, resp.Error("link not found"))
			case errors.Is(err, shortener.ErrLinkExpired):
				log.Info("link expired", slog.String("code", code))
				resp.NewJSON(w, r, http.StatusGone, resp.Error("link expired"))
			case errors.Is(err, shortener.ErrLinkExceededClickLimit):
				log.Info("link exceeded click limit", slog.String("code", code))
				resp.NewJSON(w, r, http.StatusGone, resp.Error("link no longer available"))
			default:
				log.Error("failed resolving link", sl.Err(err))
				resp.NewJSON(w, r, http.StatusInternalServerError, resp.Error("internal error"))
			}
			return
		}

		recorder.Record(link, requestMeta(r))

		log.Info("redirecting", slog.String("code", code), slog.String("url", link.OriginalURL))

		http.Redirect(w, r, link.OriginalURL, http.StatusFound)
	}
}

func requestMeta(r *http.Request) clicks.RequestMeta {
	return clicks.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		Country:   firstHeader(r, "CF-IPCountry", "X-Geo-Country"),
		City:      firstHeader(r, "X-Geo-City"),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// first hop is the client
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func firstHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}
