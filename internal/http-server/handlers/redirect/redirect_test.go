package redirect

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkforge/link-shortener/internal/clicks"
	"github.com/linkforge/link-shortener/internal/lib/logger/handlers/slogdiscard"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/shortener"
	"github.com/linkforge/link-shortener/internal/storage"
)

type fakeResolver struct {
	link models.ShortLink
	err  error
}

func (f *fakeResolver) Resolve(_ context.Context, _ int64, _ string) (models.ShortLink, error) {
	return f.link, f.err
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []clicks.RequestMeta
	links []models.ShortLink
}

func (f *fakeRecorder) Record(link models.ShortLink, meta clicks.RequestMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, link)
	f.calls = append(f.calls, meta)
}

func (f *fakeRecorder) recorded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRedirectHandler(t *testing.T) {
	cases := []struct {
		name        string
		link        models.ShortLink
		resolveErr  error
		wantCode    int
		respError   string
		wantClicked bool
	}{
		{
			name:        "success",
			link:        models.ShortLink{ID: 1, WorkspaceID: 7, Code: "abc12345", OriginalURL: "https://example.com/page"},
			wantCode:    http.StatusFound,
			wantClicked: true,
		},
		{
			name:       "link not found",
			resolveErr: storage.ErrLinkNotFound,
			wantCode:   http.StatusNotFound,
			respError:  "link not found",
		},
		{
			name:       "link expired",
			resolveErr: shortener.ErrLinkExpired,
			wantCode:   http.StatusGone,
			respError:  "link expired",
		},
		{
			name:       "click limit exceeded",
			resolveErr: shortener.ErrLinkExceededClickLimit,
			wantCode:   http.StatusGone,
			respError:  "link no longer available",
		},
		{
			name:       "storage error",
			resolveErr: errors.New("unexpected error"),
			wantCode:   http.StatusInternalServerError,
			respError:  "internal error",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resolver := &fakeResolver{link: tc.link, err: tc.resolveErr}
			recorder := &fakeRecorder{}

			r := chi.NewRouter()
			r.Get("/r/{workspace_id}/{code}", Redirect(slogdiscard.NewDiscardLogger(), resolver, recorder))

			req := httptest.NewRequest(http.MethodGet, "/r/7/abc12345", nil)
			req.Header.Set("User-Agent", "curl/8.4.0")
			req.Header.Set("Referer", "https://social.example/post")
			rr := httptest.NewRecorder()

			r.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)

			if tc.wantCode == http.StatusFound {
				assert.Equal(t, tc.link.OriginalURL, rr.Header().Get("Location"))
			}

			if tc.respError != "" {
				body, err := io.ReadAll(rr.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), tc.respError)
			}

			if tc.wantClicked {
				require.Equal(t, 1, recorder.recorded())
				assert.Equal(t, tc.link.ID, recorder.links[0].ID)
				assert.Equal(t, "curl/8.4.0", recorder.calls[0].UserAgent)
				assert.Equal(t, "https://social.example/post", recorder.calls[0].Referer)
			} else {
				assert.Equal(t, 0, recorder.recorded(), "failed resolutions must not record clicks")
			}
		})
	}
}

func TestRedirectHandler_InvalidWorkspace(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/r/{workspace_id}/{code}", Redirect(slogdiscard.NewDiscardLogger(), &fakeResolver{}, &fakeRecorder{}))

	req := httptest.NewRequest(http.MethodGet, "/r/notanumber/abc12345", nil)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "forwarded chain picks first hop",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			remote:  "10.0.0.2:1234",
			want:    "203.0.113.7",
		},
		{
			name:    "real ip fallback",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			remote:  "10.0.0.2:1234",
			want:    "203.0.113.9",
		},
		{
			name:   "remote addr fallback",
			remote: "192.0.2.4:5678",
			want:   "192.0.2.4",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}
