package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
	"github.com/Linkora-Dex/linkora-dex-backend/pkg/binance"
)

type fakeDepth struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	result    *binance.DepthResult
}

func (f *fakeDepth) Depth(_ context.Context, _ string, _ int) (*binance.DepthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, errors.New("depth fetch failed")
	}
	return f.result, nil
}

type fakeBookStore struct {
	mu        sync.Mutex
	books     []*model.OrderBookSnapshot
	failAll   bool
	failCount int
}

func (s *fakeBookStore) InsertOrderBook(_ context.Context, snap *model.OrderBookSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		s.failCount++
		return errors.New("insert failed")
	}
	s.books = append(s.books, snap)
	return nil
}

func (s *fakeBookStore) bookCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.books)
}

func depthResult() *binance.DepthResult {
	return &binance.DepthResult{
		LastUpdateID: 42,
		Bids: []model.PriceLevel{
			{Price: decimal.RequireFromString("105000.10"), Quantity: decimal.RequireFromString("0.5")},
		},
		Asks: []model.PriceLevel{
			{Price: decimal.RequireFromString("105000.20"), Quantity: decimal.RequireFromString("0.3")},
		},
	}
}

func fastBookConfig(symbol string) OrderBookConfig {
	return OrderBookConfig{
		Symbol:         symbol,
		Levels:         20,
		UpdateInterval: 2 * time.Millisecond,
		RetryDelay:     time.Millisecond,
	}
}

func TestOrderBookCollector_StoresThenPublishes(t *testing.T) {
	now := testBase.Add(30 * time.Minute)
	src := &fakeDepth{result: depthResult()}
	store := &fakeBookStore{}
	pub := &fakePublisher{}

	col := NewOrderBookCollector(fastBookConfig("BTCUSDT"), src, store, pub, testLogger())
	col.nowFn = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		col.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, "snapshots stored", func() bool { return store.bookCount() >= 2 })
	waitFor(t, 2*time.Second, "snapshots published", func() bool { return pub.bookCount() >= 2 })
	cancel()
	<-done

	store.mu.Lock()
	snap := store.books[0]
	store.mu.Unlock()
	if snap.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", snap.Symbol)
	}
	if snap.Timestamp != now.UnixMilli() {
		t.Errorf("timestamp = %d, want wall clock %d", snap.Timestamp, now.UnixMilli())
	}
	if snap.LastUpdateID != 42 {
		t.Errorf("last_update_id = %d, want 42", snap.LastUpdateID)
	}

	pub.mu.Lock()
	published := pub.books[0]
	pub.mu.Unlock()
	if published.Timestamp != now.UnixMilli() || len(published.Bids) != 1 {
		t.Errorf("published snapshot = %+v, want stored shape", published)
	}
}

func TestOrderBookCollector_StoreFailureSkipsPublish(t *testing.T) {
	src := &fakeDepth{result: depthResult()}
	store := &fakeBookStore{failAll: true}
	pub := &fakePublisher{}

	col := NewOrderBookCollector(fastBookConfig("BTCUSDT"), src, store, pub, testLogger())

	var mu sync.Mutex
	var stages []string
	col.OnError = func(stage string) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		col.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, "store errors", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stages) >= 2
	})
	cancel()
	<-done

	if got := pub.bookCount(); got != 0 {
		t.Errorf("published %d snapshots after store failures, want 0", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, stage := range stages {
		if stage != "store" {
			t.Errorf("error stage = %q, want store", stage)
		}
	}
}

func TestOrderBookCollector_FetchFailureSkipsTick(t *testing.T) {
	src := &fakeDepth{result: depthResult(), failFirst: 2}
	store := &fakeBookStore{}
	pub := &fakePublisher{}

	col := NewOrderBookCollector(fastBookConfig("BTCUSDT"), src, store, pub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		col.Run(ctx)
		close(done)
	}()

	// The worker rides out the failed ticks and the stream resumes.
	waitFor(t, 2*time.Second, "snapshot after failed ticks", func() bool { return store.bookCount() >= 1 })
	cancel()
	<-done

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	if calls < 3 {
		t.Errorf("got %d depth calls, want at least 3", calls)
	}
}
