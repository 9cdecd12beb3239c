package booklaunchbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestHandlers(t *testing.T, fetcher FeedFetcher, now time.Time) (*Handlers, KVStore) {
	t.Helper()
	store := setupTestStore(t, now)
	h := NewHandlers(newTestIngester(store, fetcher, now), NewWindowQuery(store, jst))
	h.now = func() time.Time { return now }
	return h, store
}

func serve(h *Handlers, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHandlers_Health(t *testing.T) {
	h, _ := setupTestHandlers(t, &stubFetcher{}, time.Now())

	w := serve(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
}

func TestHandlers_PostItems(t *testing.T) {
	now := time.Date(2023, 9, 20, 8, 0, 0, 0, jst)
	fetcher := &stubFetcher{items: []RawItem{
		{Title: "title1", Date: "2023-09-20T00:00:00+09:00", Link: "https://example.com/books/1?ref=rss"},
	}}
	h, store := setupTestHandlers(t, fetcher, now)

	w := serve(h, http.MethodPost, "/items")
	require.Equal(t, http.StatusOK, w.Code)

	var items []FeedItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/books/1", items[0].Link)

	_, found, err := store.Get(context.Background(), "/books/1")
	require.NoError(t, err)
	assert.True(t, found)

	// a second run finds nothing new and still answers with an array
	w = serve(h, http.MethodPost, "/items")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandlers_PostItems_Errors(t *testing.T) {
	now := time.Date(2023, 9, 20, 8, 0, 0, 0, jst)

	t.Run("upstream", func(t *testing.T) {
		h, _ := setupTestHandlers(t, &stubFetcher{err: errors.Join(ErrFetchFailed, errors.New("503"))}, now)

		w := serve(h, http.MethodPost, "/items")
		assert.Equal(t, http.StatusBadGateway, w.Code)

		var body map[string]map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, ErrorCodeUpstream, body["error"]["code"])
	})

	t.Run("internal", func(t *testing.T) {
		h, _ := setupTestHandlers(t, &stubFetcher{err: errors.New("not a feed")}, now)

		w := serve(h, http.MethodPost, "/items")
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var body map[string]map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, ErrorCodeInternal, body["error"]["code"])
	})
}

func TestHandlers_GetItems(t *testing.T) {
	now := time.Date(2023, 9, 20, 15, 0, 0, 0, jst)
	h, store := setupTestHandlers(t, &stubFetcher{}, now)
	putItem(t, store, "/today", FeedItem{Title: "today", Date: "2023-09-20T10:00:00+09:00", Link: "https://x/today"}, now.Add(24*time.Hour))
	putItem(t, store, "/tomorrow", FeedItem{Title: "tomorrow", Date: "2023-09-21T10:00:00+09:00", Link: "https://x/tomorrow"}, now.Add(48*time.Hour))

	testCases := []struct {
		target string
		titles []string
	}{
		{"/items", []string{"today"}},
		{"/items?offset=0", []string{"today"}},
		{"/items?offset=1", []string{"tomorrow"}},
		{"/items?offset=2", []string{}},
	}
	for _, tc := range testCases {
		w := serve(h, http.MethodGet, tc.target)
		require.Equal(t, http.StatusOK, w.Code, tc.target)

		var result WindowQueryResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result), tc.target)
		assert.Equal(t, tc.titles, titlesOf(result.Items), tc.target)
	}
}

func TestHandlers_GetItems_InvalidOffset(t *testing.T) {
	now := time.Date(2023, 9, 20, 15, 0, 0, 0, jst)
	h, _ := setupTestHandlers(t, &stubFetcher{}, now)

	w := serve(h, http.MethodGet, "/items?offset=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid offset")
}

func TestHandlers_UnknownRoute(t *testing.T) {
	h, _ := setupTestHandlers(t, &stubFetcher{}, time.Now())

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodDelete, "/items").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/").Code)
}
