package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bioterminal/internal/clock"
	"bioterminal/internal/domain/entity"
	"bioterminal/internal/events"
	"bioterminal/internal/infra/httppool"
	"bioterminal/pkg/ratelimit"
)

func newTestManager(t *testing.T) (*Manager, *httppool.Pool) {
	t.Helper()
	pool := httppool.New(httppool.Config{})
	t.Cleanup(pool.Close)
	return NewManager(pool, 2), pool
}

func registerSource(t *testing.T, m *Manager, pool *httppool.Pool, id, url string, parse ParseFunc) *Orchestrator {
	t.Helper()

	o, err := NewSourceStack(
		entity.Source{ID: id, Name: id, URL: url, SourceType: entity.SourceTypeRSS},
		parse, testStackConfig(),
		StackDeps{Pool: pool, Clock: clock.NewMock(time.Now())},
	)
	if err != nil {
		t.Fatalf("NewSourceStack(%s) error = %v", id, err)
	}
	if err := m.Register(o); err != nil {
		t.Fatalf("Register(%s) error = %v", id, err)
	}
	return o
}

func TestManager_FetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alpha"))
	}))
	defer srv.Close()

	m, pool := newTestManager(t)
	registerSource(t, m, pool, "pubmed", srv.URL, lineParser)

	result, err := m.FetchLatest(context.Background(), "pubmed", nil)
	if err != nil {
		t.Fatalf("FetchLatest() error = %v", err)
	}
	if len(result.Records) != 1 {
		t.Errorf("got %d records, want 1", len(result.Records))
	}

	_, err = m.FetchLatest(context.Background(), "unknown", nil)
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("error = %v, want ErrSourceNotFound", err)
	}
	if !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("error = %v, want match for entity.ErrNotFound", err)
	}
}

func TestManager_FetchBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echo the page param so each param set yields a distinct record.
		_, _ = w.Write([]byte("item-" + r.URL.Query().Get("page")))
	}))
	defer srv.Close()

	m, pool := newTestManager(t)
	registerSource(t, m, pool, "pubmed", srv.URL, lineParser)

	paramSets := []map[string]string{
		{"page": "1"},
		{"page": "2"},
		{"page": "3"},
	}
	results, err := m.FetchBatch(context.Background(), "pubmed", paramSets)
	if err != nil {
		t.Fatalf("FetchBatch() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"item-1", "item-2", "item-3"} {
		if len(results[i].Records) != 1 || results[i].Records[0].Title != want {
			t.Errorf("results[%d] = %+v, want single record %q", i, results[i].Records, want)
		}
	}

	if _, err := m.FetchBatch(context.Background(), "unknown", paramSets); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("error = %v, want ErrSourceNotFound", err)
	}
}

func TestManager_RegisterDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alpha"))
	}))
	defer srv.Close()

	m, pool := newTestManager(t)
	o := registerSource(t, m, pool, "pubmed", srv.URL, lineParser)

	if err := m.Register(o); err == nil {
		t.Error("expected error registering duplicate source ID")
	}
}

func TestManager_CrawlAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("one\ntwo"))
	}))
	defer srv.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	m, pool := newTestManager(t)
	registerSource(t, m, pool, "fda-news", srv.URL, lineParser)
	registerSource(t, m, pool, "biospace", srv.URL, lineParser)
	registerSource(t, m, pool, "flaky", broken.URL, lineParser)

	stats, err := m.CrawlAll(context.Background())
	if err != nil {
		t.Fatalf("CrawlAll() error = %v", err)
	}
	if stats.Sources != 3 {
		t.Errorf("Sources = %d, want 3", stats.Sources)
	}
	if stats.Records != 4 {
		t.Errorf("Records = %d, want 4 (two healthy sources x two records)", stats.Records)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1 (the broken source must not abort the crawl)", stats.Errors)
	}
}

func TestManager_HealthAggregation(t *testing.T) {
	healthySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alpha"))
	}))
	defer healthySrv.Close()

	brokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer brokenSrv.Close()

	m, pool := newTestManager(t)
	registerSource(t, m, pool, "healthy", healthySrv.URL, lineParser)
	registerSource(t, m, pool, "broken", brokenSrv.URL, lineParser)

	if got := m.Health().Status; got != StatusHealthy {
		t.Errorf("initial aggregate = %v, want healthy", got)
	}

	_, _ = m.FetchLatest(context.Background(), "healthy", nil)
	for i := 0; i < 5; i++ {
		_, _ = m.FetchLatest(context.Background(), "broken", nil)
	}

	health := m.Health()
	if health.Status != StatusDegraded {
		t.Errorf("aggregate = %v, want degraded (one source down must surface)", health.Status)
	}
	if health.Sources["broken"].Status != StatusDown {
		t.Errorf("broken source status = %v, want down", health.Sources["broken"].Status)
	}
	if health.Sources["healthy"].Status != StatusHealthy {
		t.Errorf("healthy source status = %v, want healthy", health.Sources["healthy"].Status)
	}
}

func TestManager_ClearCache(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("alpha"))
	}))
	defer srv.Close()

	m, pool := newTestManager(t)
	registerSource(t, m, pool, "pubmed", srv.URL, lineParser)

	_, _ = m.FetchLatest(context.Background(), "pubmed", nil)
	_, _ = m.FetchLatest(context.Background(), "pubmed", nil)
	if hits != 1 {
		t.Fatalf("server hits = %d, want 1 before ClearCache", hits)
	}

	if err := m.ClearCache("pubmed"); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	_, _ = m.FetchLatest(context.Background(), "pubmed", nil)
	if hits != 2 {
		t.Errorf("server hits = %d, want 2 after ClearCache", hits)
	}

	if err := m.ClearCache("unknown"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("ClearCache(unknown) error = %v, want ErrSourceNotFound", err)
	}
	if err := m.ClearCache(""); err != nil {
		t.Errorf("ClearCache all error = %v", err)
	}
}

func TestManager_Stats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alpha"))
	}))
	defer srv.Close()

	m, pool := newTestManager(t)
	registerSource(t, m, pool, "pubmed", srv.URL, lineParser)

	_, _ = m.FetchLatest(context.Background(), "pubmed", nil)

	stats := m.Stats()
	src, ok := stats.Sources["pubmed"]
	if !ok {
		t.Fatal("stats missing registered source")
	}
	if src.TotalFetches != 1 {
		t.Errorf("TotalFetches = %d, want 1", src.TotalFetches)
	}
	if src.CacheStats.Misses != 1 {
		t.Errorf("cache Misses = %d, want 1", src.CacheStats.Misses)
	}
	if stats.Pool.TotalConns != 1 {
		t.Errorf("pool TotalConns = %d, want 1", stats.Pool.TotalConns)
	}
}

func TestNewSourceStack_EmitsBreakerEvents(t *testing.T) {
	brokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer brokenSrv.Close()

	var received []events.Event
	hub := events.NewHub(events.SinkFunc(func(evt events.Event) {
		received = append(received, evt)
	}))

	pool := httppool.New(httppool.Config{})
	defer pool.Close()

	o, err := NewSourceStack(
		entity.Source{ID: "flaky", Name: "Flaky", URL: brokenSrv.URL, SourceType: entity.SourceTypeRSS},
		lineParser, testStackConfig(),
		StackDeps{Pool: pool, Hub: hub, Clock: clock.NewMock(time.Now())},
	)
	if err != nil {
		t.Fatalf("NewSourceStack() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		_, _ = o.Fetch(context.Background(), nil)
	}

	if len(received) == 0 {
		t.Fatal("expected breaker transition events")
	}
	evt := received[0]
	if evt.Type != events.TypeBreakerTransition {
		t.Errorf("event type = %q, want breaker transition", evt.Type)
	}
	if evt.Source != "flaky" || evt.From != "closed" || evt.To != "open" {
		t.Errorf("event = %+v, want flaky closed->open", evt)
	}
}

func TestNewSourceStack_WiresLimiterMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alpha"))
	}))
	defer srv.Close()

	pool := httppool.New(httppool.Config{})
	t.Cleanup(pool.Close)

	pm := ratelimit.NewPrometheusMetrics()
	o, err := NewSourceStack(
		entity.Source{ID: "metered", Name: "Metered", URL: srv.URL, SourceType: entity.SourceTypeRSS},
		lineParser, testStackConfig(),
		StackDeps{Pool: pool, Clock: clock.NewMock(time.Now()), LimiterMetrics: pm},
	)
	if err != nil {
		t.Fatalf("NewSourceStack() error = %v", err)
	}

	if _, err := o.Fetch(context.Background(), nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	families, err := pm.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	collected := make(map[string]bool, len(families))
	for _, mf := range families {
		collected[mf.GetName()] = true
	}
	for _, name := range []string{
		"outbound_rate_limit_wait_duration_seconds",
		"outbound_rate_limit_current_rate",
	} {
		if !collected[name] {
			t.Errorf("metric family %s not collected after a fetch", name)
		}
	}
}
