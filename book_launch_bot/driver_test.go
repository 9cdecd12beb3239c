package booklaunchbot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type driverFixture struct {
	fetcher *stubFetcher
	blocks  *recordingSink[BlockMessage]
	texts   *recordingSink[TextMessage]
	driver  *Driver
}

// setupDriver runs the item endpoints on a local server and points a Driver at it.
func setupDriver(t *testing.T, now time.Time) *driverFixture {
	t.Helper()
	f := &driverFixture{
		fetcher: &stubFetcher{},
		blocks:  &recordingSink[BlockMessage]{},
		texts:   &recordingSink[TextMessage]{},
	}
	h, _ := setupTestHandlers(t, f.fetcher, now)
	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)

	notifier, err := NewNotifier("C1", jst, f.blocks, f.texts)
	require.NoError(t, err)
	f.driver = NewDriver(NewSelfClient(server.URL, 5*time.Second), notifier, NotificationConfig{
		NewItemsTitle:  "新刊情報",
		SoonItemsTitle: "本日発売",
	})
	return f
}

func TestDriver_RunCycle(t *testing.T) {
	now := time.Date(2023, 9, 20, 9, 0, 0, 0, jst)
	f := setupDriver(t, now)
	f.fetcher.items = []RawItem{
		{Title: "today", Date: "2023-09-20T00:00:00+09:00", Link: "https://example.com/books/1"},
		{Title: "next week", Date: "2023-09-27T00:00:00+09:00", Link: "https://example.com/books/2"},
	}

	f.driver.RunCycle(context.Background())

	require.Len(t, f.blocks.messages, 2)
	require.Len(t, f.texts.messages, 2)

	newItems := f.blocks.messages[0]
	assert.Equal(t, "新刊情報", newItems.Body.Blocks[0].Text.Text)
	assert.Len(t, newItems.Body.Blocks, 4, "header, divider and one section per new item")

	soon := f.blocks.messages[1]
	assert.Equal(t, "本日発売", soon.Body.Blocks[0].Text.Text)
	require.Len(t, soon.Body.Blocks, 3)
	assert.Equal(t, "*today*\n2023/9/20\nhttps://example.com/books/1", soon.Body.Blocks[2].Text.Text)

	assert.Equal(t, "# 本日発売\n## today\n2023/9/20\nhttps://example.com/books/1", f.texts.messages[1].Body.Content)
}

func TestDriver_RunCycle_NothingNew(t *testing.T) {
	now := time.Date(2023, 9, 20, 9, 0, 0, 0, jst)
	f := setupDriver(t, now)
	f.fetcher.items = []RawItem{
		{Title: "today", Date: "2023-09-20T00:00:00+09:00", Link: "https://example.com/books/1"},
	}
	f.driver.RunCycle(context.Background())
	require.Len(t, f.blocks.messages, 2)

	// the item is known now, so only the soon window is announced
	f.driver.RunCycle(context.Background())
	require.Len(t, f.blocks.messages, 3)
	assert.Equal(t, "本日発売", f.blocks.messages[2].Body.Blocks[0].Text.Text)
}

func TestDriver_RunCycle_FetchFailureStillQueriesSoonItems(t *testing.T) {
	now := time.Date(2023, 9, 20, 9, 0, 0, 0, jst)
	f := setupDriver(t, now)
	f.fetcher.items = []RawItem{
		{Title: "today", Date: "2023-09-20T00:00:00+09:00", Link: "https://example.com/books/1"},
	}
	f.driver.RunCycle(context.Background())
	require.Len(t, f.blocks.messages, 2)

	f.fetcher.err = ErrFetchFailed
	f.driver.RunCycle(context.Background())

	require.Len(t, f.blocks.messages, 3)
	assert.Equal(t, "本日発売", f.blocks.messages[2].Body.Blocks[0].Text.Text)
}

func TestDriver_RunCycle_SinkFailureDoesNotStopCycle(t *testing.T) {
	now := time.Date(2023, 9, 20, 9, 0, 0, 0, jst)
	f := setupDriver(t, now)
	f.blocks.err = errors.New("slack down")
	f.fetcher.items = []RawItem{
		{Title: "today", Date: "2023-09-20T00:00:00+09:00", Link: "https://example.com/books/1"},
	}

	f.driver.RunCycle(context.Background())

	assert.Len(t, f.blocks.messages, 2)
	assert.Len(t, f.texts.messages, 2)
}

// panickingAPI fails the new items step with a panic.
type panickingAPI struct {
	ItemsAPI
	soonCalls int
}

func (a *panickingAPI) PostItems(ctx context.Context) ([]FeedItem, error) {
	panic("boom")
}

func (a *panickingAPI) GetItems(ctx context.Context, offsetDays int) (*WindowQueryResult, error) {
	a.soonCalls++
	return &WindowQueryResult{Items: []FeedItem{}}, nil
}

func TestDriver_RunCycle_RecoversFromPanic(t *testing.T) {
	notifier, err := NewNotifier("C1", jst, &recordingSink[BlockMessage]{}, &recordingSink[TextMessage]{})
	require.NoError(t, err)
	api := &panickingAPI{}

	assert.NotPanics(t, func() {
		NewDriver(api, notifier, NotificationConfig{}).RunCycle(context.Background())
	})
	assert.Equal(t, 1, api.soonCalls)
}

func TestSelfClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid offset", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewSelfClient(server.URL+"/", time.Second)
	_, err := client.GetItems(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid offset")

	_, err = client.PostItems(context.Background())
	assert.Error(t, err)
}

func TestNewScheduler(t *testing.T) {
	driver := NewDriver(&panickingAPI{}, nil, NotificationConfig{})

	_, err := NewScheduler("not a schedule", jst, driver, time.Minute)
	assert.Error(t, err)

	s, err := NewScheduler("0 9 * * *", jst, driver, time.Minute)
	require.NoError(t, err)
	s.Start()
	<-s.Stop().Done()
}

// blockingAPI holds the new items step until release is closed.
type blockingAPI struct {
	started  atomic.Int32
	finished atomic.Int32
	release  chan struct{}
}

func (a *blockingAPI) PostItems(ctx context.Context) ([]FeedItem, error) {
	a.started.Add(1)
	<-a.release
	a.finished.Add(1)
	return []FeedItem{}, nil
}

func (a *blockingAPI) GetItems(ctx context.Context, offsetDays int) (*WindowQueryResult, error) {
	return &WindowQueryResult{Items: []FeedItem{}}, nil
}

func TestScheduler_RunOnce(t *testing.T) {
	api := &blockingAPI{release: make(chan struct{})}
	s, err := NewScheduler("0 9 * * *", jst, NewDriver(api, nil, NotificationConfig{}), time.Minute)
	require.NoError(t, err)

	s.RunOnce()
	s.Start()
	require.Eventually(t, func() bool { return api.started.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// a second cycle while the first is running is skipped
	s.RunOnce()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), api.started.Load())

	stopped := s.Stop()
	assert.NoError(t, stopped.Err(), "Stop waits for the running cycle")

	close(api.release)
	<-stopped.Done()
	assert.Equal(t, int32(1), api.finished.Load())
}
