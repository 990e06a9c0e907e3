package save

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkforge/link-shortener/internal/canonical"
	"github.com/linkforge/link-shortener/internal/lib/logger/handlers/slogdiscard"
	"github.com/linkforge/link-shortener/internal/models"
	"github.com/linkforge/link-shortener/internal/shortener"
	"github.com/linkforge/link-shortener/internal/storage"
)

type fakeCreator struct {
	result shortener.CreateResult
	err    error

	gotWorkspaceID int64
	gotURL         string
	gotOpts        shortener.CreateOptions
}

func (f *fakeCreator) CreateOrReuse(_ context.Context, workspaceID int64, rawURL string, opts shortener.CreateOptions) (shortener.CreateResult, error) {
	f.gotWorkspaceID = workspaceID
	f.gotURL = rawURL
	f.gotOpts = opts
	return f.result, f.err
}

type fakePublisher struct {
	published int
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, _ interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.published++
	return nil
}

func doRequest(t *testing.T, creator LinkCreator, producer Publisher, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Post("/api/workspaces/{workspace_id}/links", New(slogdiscard.NewDiscardLogger(), creator, producer))

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/7/links", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	return rr
}

func TestSaveHandler_Success(t *testing.T) {
	creator := &fakeCreator{
		result: shortener.CreateResult{
			Link: models.ShortLink{
				ID:            1,
				WorkspaceID:   7,
				Code:          "Ab3dEf9h",
				OriginalURL:   "HTTPS://Example.com/page",
				NormalizedURL: "https://example.com/page",
				CreatedAt:     time.Now(),
			},
			IsNew: true,
		},
	}
	producer := &fakePublisher{}

	rr := doRequest(t, creator, producer, `{"url": "HTTPS://Example.com/page"}`)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Ab3dEf9h", resp.Code)
	assert.Equal(t, "https://example.com/page", resp.CanonicalURL)
	assert.True(t, resp.IsNew)

	assert.EqualValues(t, 7, creator.gotWorkspaceID)
	assert.Equal(t, "HTTPS://Example.com/page", creator.gotURL)
	assert.Equal(t, 1, producer.published, "new links publish an audit event")
}

func TestSaveHandler_ReuseSkipsAudit(t *testing.T) {
	creator := &fakeCreator{
		result: shortener.CreateResult{
			Link:  models.ShortLink{ID: 1, Code: "Ab3dEf9h"},
			IsNew: false,
		},
	}
	producer := &fakePublisher{}

	rr := doRequest(t, creator, producer, `{"url": "https://example.com/page"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, producer.published, "reused links are not re-announced")
}

func TestSaveHandler_Options(t *testing.T) {
	creator := &fakeCreator{
		result: shortener.CreateResult{Link: models.ShortLink{Code: "vanity-1"}, IsNew: true},
	}

	body := `{"url": "https://example.com", "custom_code": "vanity-1", "max_clicks": 100, "tags": ["promo", "q3"]}`
	rr := doRequest(t, creator, &fakePublisher{}, body)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "vanity-1", creator.gotOpts.CustomCode)
	require.NotNil(t, creator.gotOpts.MaxClicks)
	assert.EqualValues(t, 100, *creator.gotOpts.MaxClicks)
	assert.Equal(t, []string{"promo", "q3"}, creator.gotOpts.Tags)
}

func TestSaveHandler_ArbitraryURL(t *testing.T) {
	creator := &fakeCreator{
		result: shortener.CreateResult{Link: models.ShortLink{Code: "Ab3dEf9h"}, IsNew: true},
	}

	url := gofakeit.URL()
	body, err := json.Marshal(Request{URL: url})
	require.NoError(t, err)

	rr := doRequest(t, creator, &fakePublisher{}, string(body))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, url, creator.gotURL, "raw url reaches the service untouched")
}

func TestSaveHandler_Errors(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		creatorErr error
		wantCode   int
		respError  string
	}{
		{
			name:      "empty body",
			body:      "",
			wantCode:  http.StatusBadRequest,
			respError: "invalid request body",
		},
		{
			name:      "missing url",
			body:      `{"custom_code": "x"}`,
			wantCode:  http.StatusBadRequest,
			respError: "field URL is a required field",
		},
		{
			name:       "invalid url",
			body:       `{"url": "ftp://example.com"}`,
			creatorErr: canonical.ErrInvalidURL,
			wantCode:   http.StatusBadRequest,
			respError:  "invalid url",
		},
		{
			name:       "workspace not found",
			body:       `{"url": "https://example.com"}`,
			creatorErr: storage.ErrWorkspaceNotFound,
			wantCode:   http.StatusNotFound,
			respError:  "workspace not found",
		},
		{
			name:       "workspace inactive",
			body:       `{"url": "https://example.com"}`,
			creatorErr: shortener.ErrWorkspaceInactive,
			wantCode:   http.StatusNotFound,
			respError:  "workspace not found",
		},
		{
			name:       "custom code taken",
			body:       `{"url": "https://example.com", "custom_code": "taken"}`,
			creatorErr: shortener.ErrCustomCodeTaken,
			wantCode:   http.StatusConflict,
			respError:  "custom code already taken",
		},
		{
			name:       "collision exhausted",
			body:       `{"url": "https://example.com"}`,
			creatorErr: shortener.ErrCollisionExhausted,
			wantCode:   http.StatusInternalServerError,
			respError:  "failed to add link",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			creator := &fakeCreator{err: tc.creatorErr}
			rr := doRequest(t, creator, &fakePublisher{}, tc.body)

			assert.Equal(t, tc.wantCode, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.respError)
		})
	}
}
