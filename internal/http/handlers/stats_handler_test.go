package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zoot009/indexer-v2-backend/internal/events"
	"github.com/Zoot009/indexer-v2-backend/internal/stats"
)

func newStatsServer(t *testing.T, agg *stats.Aggregator, bus events.Bus, keepAlive time.Duration) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &StatsHandler{Stats: agg, Bus: bus, KeepAlive: keepAlive}
	r.GET("/stats", h.GetStats)
	r.GET("/stats/stream", h.StreamStats)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// nextDataLine scans the SSE stream until the next data: line and decodes it.
func nextDataLine(t *testing.T, sc *bufio.Scanner) events.StatsUpdate {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var u events.StatsUpdate
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		return u
	}
	t.Fatalf("stream ended early: %v", sc.Err())
	return events.StatsUpdate{}
}

func TestGetStats(t *testing.T) {
	bus := events.NewMemoryBus()
	agg := stats.NewAggregator(bus)
	ctx := context.Background()
	agg.RecordOutcome(ctx, "p1", stats.OutcomeIndexed)
	agg.RecordOutcome(ctx, "p2", stats.OutcomeError)

	srv := newStatsServer(t, agg, bus, time.Minute)

	t.Run("global", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/stats")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var got stats.Totals
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.TotalProcessed != 2 || got.IndexedCount != 1 || got.ErrorCount != 1 {
			t.Fatalf("totals = %+v", got)
		}
	})

	t.Run("scoped", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/stats?projectId=p1")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var got stats.Totals
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.TotalProcessed != 1 || got.IndexedCount != 1 || got.ErrorCount != 0 {
			t.Fatalf("totals = %+v", got)
		}
	})

	t.Run("unknown project yields zeroes", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/stats?projectId=ghost")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var got stats.Totals
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got != (stats.Totals{}) {
			t.Fatalf("totals = %+v, want zeroes", got)
		}
	})
}

func openStream(t *testing.T, url string) (*bufio.Scanner, *http.Response, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() { cancel(); resp.Body.Close() })
	return bufio.NewScanner(resp.Body), resp, cancel
}

func TestStreamStats_ProjectScoped(t *testing.T) {
	bus := events.NewMemoryBus()
	agg := stats.NewAggregator(bus)
	agg.RecordOutcome(context.Background(), "p1", stats.OutcomeIndexed)

	srv := newStatsServer(t, agg, bus, time.Minute)
	sc, resp, _ := openStream(t, srv.URL+"/stats/stream?projectId=p1")

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The stream opens with the current snapshot.
	initial := nextDataLine(t, sc)
	if initial.ProjectID != "p1" || initial.TotalProcessed != 1 || initial.IndexedCount != 1 {
		t.Fatalf("initial event = %+v", initial)
	}

	// A global update is filtered out; only the matching scope flows.
	ctx := context.Background()
	if err := bus.PublishStats(ctx, events.StatsUpdate{TotalProcessed: 99}); err != nil {
		t.Fatal(err)
	}
	if err := bus.PublishStats(ctx, events.StatsUpdate{ProjectID: "p1", TotalProcessed: 2, IndexedCount: 2}); err != nil {
		t.Fatal(err)
	}

	next := nextDataLine(t, sc)
	if next.ProjectID != "p1" || next.TotalProcessed != 2 {
		t.Fatalf("streamed event = %+v (global update leaked through?)", next)
	}
}

func TestStreamStats_GlobalFiltersProjectEvents(t *testing.T) {
	bus := events.NewMemoryBus()
	agg := stats.NewAggregator(bus)

	srv := newStatsServer(t, agg, bus, time.Minute)
	sc, _, _ := openStream(t, srv.URL+"/stats/stream")

	initial := nextDataLine(t, sc)
	if initial.ProjectID != "" || initial.TotalProcessed != 0 {
		t.Fatalf("initial event = %+v", initial)
	}

	ctx := context.Background()
	if err := bus.PublishStats(ctx, events.StatsUpdate{ProjectID: "p1", TotalProcessed: 5}); err != nil {
		t.Fatal(err)
	}
	if err := bus.PublishStats(ctx, events.StatsUpdate{TotalProcessed: 6}); err != nil {
		t.Fatal(err)
	}

	next := nextDataLine(t, sc)
	if next.ProjectID != "" || next.TotalProcessed != 6 {
		t.Fatalf("streamed event = %+v", next)
	}
}

func TestStreamStats_KeepAlive(t *testing.T) {
	bus := events.NewMemoryBus()
	agg := stats.NewAggregator(bus)

	srv := newStatsServer(t, agg, bus, 20*time.Millisecond)
	sc, _, _ := openStream(t, srv.URL+"/stats/stream")

	sawComment := false
	deadline := time.Now().Add(2 * time.Second)
	for sc.Scan() && time.Now().Before(deadline) {
		if strings.HasPrefix(sc.Text(), ":") {
			sawComment = true
			break
		}
	}
	if !sawComment {
		t.Fatal("no keep-alive comment observed on an idle stream")
	}
}
