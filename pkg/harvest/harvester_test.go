package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"agentharvest/pkg/cache"
	"agentharvest/pkg/config"
	"agentharvest/pkg/directory"
	"agentharvest/pkg/fetch"
	"agentharvest/pkg/output"
)

// stubFetcher serves canned bodies per URL and can be told to fail
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]int // failures before success; -1 means always fail
	attempts  map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		responses: make(map[string]string),
		failures:  make(map[string]int),
		attempts:  make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string, headers map[string]string, ttl int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts[url]++
	if n, ok := f.failures[url]; ok && (n < 0 || f.attempts[url] <= n) {
		return nil, errors.New("stub fetch failure")
	}
	body, ok := f.responses[url]
	if !ok {
		return nil, fmt.Errorf("no stub response for %s", url)
	}
	return []byte(body), nil
}

func (f *stubFetcher) attemptsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[url]
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Directory.BaseURL = "https://directory.test/api"
	cfg.Harvest.PageSize = 500
	cfg.Harvest.BatchSize = 5
	cfg.Harvest.MaxRetries = 3
	cfg.Harvest.RetryDelay = time.Millisecond
	cfg.Harvest.BatchDelay = time.Millisecond
	return cfg
}

func newTestWriter(t *testing.T) *output.Writer {
	t.Helper()
	w, err := output.NewWriter(filepath.Join(t.TempDir(), "out.ndjson"))
	require.NoError(t, err)
	return w
}

func listBody(total int, ids ...string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{"agentId":"%s"}`, id)
	}
	return fmt.Sprintf(`{"data":{"totalAgents":%d,"agent":[%s]}}`, total, strings.Join(parts, ","))
}

func detailBody(name string) string {
	return fmt.Sprintf(`{"data":{"name":"%s"}}`, name)
}

func stubListing(f *stubFetcher, cfg *config.Config, page int, body string) {
	f.responses[directory.ListURL(cfg.Directory.BaseURL, page, cfg.Harvest.PageSize)] = body
}

func stubDetail(f *stubFetcher, cfg *config.Config, id string) {
	f.responses[directory.DetailURL(cfg.Directory.BaseURL, id)] = detailBody("agent " + id)
}

func readRecords(t *testing.T, w *output.Writer) []string {
	t.Helper()
	content, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	trimmed := strings.TrimRight(string(content), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestTwoPageEnumeration(t *testing.T) {
	cfg := testConfig()
	fetcher := newStubFetcher()

	// total_count=1000, page_size=500 means exactly 2 pages
	stubListing(fetcher, cfg, 0, listBody(1000, "a1", "a2"))
	stubListing(fetcher, cfg, 1, listBody(1000, "a3", "a4"))
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		stubDetail(fetcher, cfg, id)
	}

	w := newTestWriter(t)
	h := New(cfg, fetcher, w)

	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1000, summary.TotalAgents)
	assert.Equal(t, 2, summary.PageCount)
	assert.Equal(t, 4, summary.IDsCollected)
	assert.Equal(t, 4, summary.RecordsWritten)
	assert.Equal(t, 0, summary.FailureCount)

	// Every id appears exactly once, no duplicates or omissions
	records := readRecords(t, w)
	require.Len(t, records, 4)
	seen := make(map[string]bool)
	for _, record := range records {
		id := gjson.Get(record, "agentId").String()
		assert.False(t, seen[id], "duplicate record for %s", id)
		seen[id] = true
	}
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		assert.True(t, seen[id], "missing record for %s", id)
	}
}

func TestSinglePageSkipsBatchLoop(t *testing.T) {
	cfg := testConfig()
	fetcher := newStubFetcher()

	stubListing(fetcher, cfg, 0, listBody(3, "a1", "a2", "a3"))
	for _, id := range []string{"a1", "a2", "a3"} {
		stubDetail(fetcher, cfg, id)
	}

	h := New(cfg, fetcher, newTestWriter(t))
	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PageCount)
	assert.Equal(t, 3, summary.RecordsWritten)
}

func TestFirstPageFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	fetcher := newStubFetcher()
	page0 := directory.ListURL(cfg.Directory.BaseURL, 0, cfg.Harvest.PageSize)
	fetcher.failures[page0] = -1

	h := New(cfg, fetcher, newTestWriter(t))
	_, err := h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first listing page")
}

func TestFailedPageIsSkippedNotFatal(t *testing.T) {
	cfg := testConfig()
	fetcher := newStubFetcher()

	stubListing(fetcher, cfg, 0, listBody(1000, "a1"))
	page1 := directory.ListURL(cfg.Directory.BaseURL, 1, cfg.Harvest.PageSize)
	fetcher.failures[page1] = -1
	stubDetail(fetcher, cfg, "a1")

	h := New(cfg, fetcher, newTestWriter(t))
	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.IDsCollected)
	assert.Equal(t, 1, summary.RecordsWritten)
	assert.Equal(t, 1, summary.FailureCount)
	assert.Equal(t, 3, fetcher.attemptsFor(page1), "failed page gets the full retry budget")
}

func TestRetryExhaustionAttemptsAndSingleLogEntry(t *testing.T) {
	cfg := testConfig()
	fetcher := newStubFetcher()

	stubListing(fetcher, cfg, 0, listBody(3, "ok1", "bad", "ok2"))
	stubDetail(fetcher, cfg, "ok1")
	stubDetail(fetcher, cfg, "ok2")
	badURL := directory.DetailURL(cfg.Directory.BaseURL, "bad")
	fetcher.failures[badURL] = -1

	w := newTestWriter(t)
	h := New(cfg, fetcher, w)
	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, cfg.Harvest.MaxRetries, fetcher.attemptsFor(badURL),
		"a permanently failing item is attempted exactly max_retries times")
	assert.Equal(t, 1, summary.FailureCount, "exactly one error log entry for the failed item")
	assert.Equal(t, 2, summary.RecordsWritten, "the rest of the batch still yields records")
}

func TestTransientFailureRecoversWithinBudget(t *testing.T) {
	cfg := testConfig()
	fetcher := newStubFetcher()

	stubListing(fetcher, cfg, 0, listBody(1, "flaky"))
	flakyURL := directory.DetailURL(cfg.Directory.BaseURL, "flaky")
	fetcher.responses[flakyURL] = detailBody("agent flaky")
	fetcher.failures[flakyURL] = 2 // fails twice, succeeds on the third attempt

	h := New(cfg, fetcher, newTestWriter(t))
	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, fetcher.attemptsFor(flakyURL))
	assert.Equal(t, 1, summary.RecordsWritten)
	assert.Equal(t, 0, summary.FailureCount)
}

func TestPartialFailureIsolationWithinBatch(t *testing.T) {
	cfg := testConfig()
	cfg.Harvest.BatchSize = 5
	fetcher := newStubFetcher()

	ids := []string{"a1", "a2", "a3", "a4", "a5"}
	stubListing(fetcher, cfg, 0, listBody(len(ids), ids...))
	for _, id := range ids {
		stubDetail(fetcher, cfg, id)
	}
	// One item of the batch fails permanently
	fetcher.failures[directory.DetailURL(cfg.Directory.BaseURL, "a3")] = -1

	w := newTestWriter(t)
	h := New(cfg, fetcher, w)
	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.RecordsWritten)
	assert.Equal(t, 1, summary.FailureCount)

	records := readRecords(t, w)
	for _, record := range records {
		assert.NotEqual(t, "a3", gjson.Get(record, "agentId").String(),
			"no placeholder is written for the failed item")
	}
}

func TestUnparseableDetailIsSkipped(t *testing.T) {
	cfg := testConfig()
	fetcher := newStubFetcher()

	stubListing(fetcher, cfg, 0, listBody(2, "good", "weird"))
	stubDetail(fetcher, cfg, "good")
	fetcher.responses[directory.DetailURL(cfg.Directory.BaseURL, "weird")] = `{"unexpected":"shape"}`

	h := New(cfg, fetcher, newTestWriter(t))
	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RecordsWritten)
	assert.Equal(t, 1, summary.FailureCount)
}

func TestRunBatchLaunchesAllBeforeAwaiting(t *testing.T) {
	const n = 4
	var started sync.WaitGroup
	started.Add(n)

	// Each worker blocks until every worker has started; this deadlocks
	// unless all items are launched before any is awaited.
	done := make(chan struct{})
	go func() {
		results := runBatch(make([]int, n), func(int) bool {
			started.Done()
			started.Wait()
			return true
		})
		assert.Len(t, results, n)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runBatch did not launch all items concurrently")
	}
}

func TestErrorLog(t *testing.T) {
	log := NewErrorLog()
	for i := 0; i < 10; i++ {
		log.Addf("failure %d", i)
	}

	assert.Equal(t, 10, log.Len())
	assert.Equal(t, []string{"failure 0", "failure 1", "failure 2"}, log.First(3))
	assert.Len(t, log.First(50), 10)
	assert.Len(t, log.Entries(), 10)
}

// TestEndToEndThroughFetchClient wires the real fetch client and cache
// against an httptest directory server.
func TestEndToEndThroughFetchClient(t *testing.T) {
	cfg := testConfig()
	cfg.Harvest.PageSize = 2
	cfg.Harvest.BatchSize = 2

	mux := http.NewServeMux()
	mux.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "0":
			fmt.Fprint(w, listBody(4, "a1", "a2"))
		case "1":
			fmt.Fprint(w, listBody(4, "a3", "a4"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/agents/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/agents/")
		fmt.Fprint(w, detailBody("agent "+id))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	cfg.Directory.BaseURL = server.URL

	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	client := fetch.NewClient(fetch.Options{Cache: store, Timeout: 5 * time.Second})

	w := newTestWriter(t)
	h := New(cfg, client, w)
	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalAgents)
	assert.Equal(t, 2, summary.PageCount)
	assert.Equal(t, 4, summary.RecordsWritten)
	assert.Equal(t, 0, summary.FailureCount)
}
