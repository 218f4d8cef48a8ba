package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLister serves pre-canned pages keyed by cursor.
type fakeLister struct {
	pages map[string]domain.MarketPage
	err   error
	calls int
}

func (f *fakeLister) ListMarkets(_ context.Context, cursor string) (domain.MarketPage, error) {
	f.calls++
	if f.err != nil {
		return domain.MarketPage{}, f.err
	}
	return f.pages[cursor], nil
}

func market(id, title string, active, closed bool) domain.Market {
	return domain.Market{
		ID: id, Title: title, ConditionID: id,
		YesTokenID: id + "-y", NoTokenID: id + "-n",
		Active: active, Closed: closed,
	}
}

func TestDiscoverMarketsFiltersAndPaginates(t *testing.T) {
	lister := &fakeLister{pages: map[string]domain.MarketPage{
		"": {
			Markets: []domain.Market{
				market("m1", "Bitcoin Up or Down - September 1, 3PM ET", true, false),
				market("m2", "Will it rain in NYC?", true, false),
				market("m3", "BTC Up or Down - September 1, 4PM ET", true, true), // closed
			},
			NextCursor: "p2",
		},
		"p2": {
			Markets: []domain.Market{
				market("m4", "btc up or down - hourly", true, false),
			},
			NextCursor: "",
		},
	}}

	d := NewDiscovery(lister, []string{"bitcoin up or down", "btc up or down"}, 5, time.Second, testLogger())
	got, err := d.DiscoverMarkets(context.Background())
	if err != nil {
		t.Fatalf("DiscoverMarkets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matched %d markets, want 2: %+v", len(got), got)
	}
	if got[0].ID != "m1" || got[1].ID != "m4" {
		t.Errorf("matched = %s, %s", got[0].ID, got[1].ID)
	}
	if lister.calls != 2 {
		t.Errorf("listing calls = %d, want 2", lister.calls)
	}
}

func TestDiscoverMarketsPageCap(t *testing.T) {
	// Every page points to the next; the walk must stop at maxPages.
	lister := &fakeLister{pages: map[string]domain.MarketPage{
		"":  {NextCursor: "a"},
		"a": {NextCursor: "b"},
		"b": {NextCursor: "c"},
		"c": {NextCursor: "d"},
		"d": {NextCursor: "e"},
		"e": {NextCursor: "f"},
	}}

	d := NewDiscovery(lister, []string{"x"}, 3, time.Second, testLogger())
	if _, err := d.DiscoverMarkets(context.Background()); err != nil {
		t.Fatalf("DiscoverMarkets: %v", err)
	}
	if lister.calls != 3 {
		t.Errorf("listing calls = %d, want 3", lister.calls)
	}
}

// deadlineLister records the deadline each listing call carries.
type deadlineLister struct {
	pages     map[string]domain.MarketPage
	deadlines []time.Time
}

func (f *deadlineLister) ListMarkets(ctx context.Context, cursor string) (domain.MarketPage, error) {
	dl, ok := ctx.Deadline()
	if !ok {
		return domain.MarketPage{}, errors.New("listing call has no deadline")
	}
	f.deadlines = append(f.deadlines, dl)
	time.Sleep(5 * time.Millisecond)
	return f.pages[cursor], nil
}

func TestDiscoverMarketsDeadlinePerPage(t *testing.T) {
	lister := &deadlineLister{pages: map[string]domain.MarketPage{
		"":   {NextCursor: "p2"},
		"p2": {},
	}}

	d := NewDiscovery(lister, []string{"x"}, 5, 50*time.Millisecond, testLogger())
	if _, err := d.DiscoverMarkets(context.Background()); err != nil {
		t.Fatalf("DiscoverMarkets: %v", err)
	}
	if len(lister.deadlines) != 2 {
		t.Fatalf("listing calls = %d, want 2", len(lister.deadlines))
	}
	// The timeout applies to each page fetch, not the whole walk: the second
	// page must get a fresh, later deadline than the first.
	if !lister.deadlines[1].After(lister.deadlines[0]) {
		t.Errorf("page deadlines = %v, want a later deadline for the second page", lister.deadlines)
	}
}

func TestDiscoverMarketsAbortsOnError(t *testing.T) {
	wantErr := errors.New("listing down")
	d := NewDiscovery(&fakeLister{err: wantErr}, []string{"x"}, 5, time.Second, testLogger())

	if _, err := d.DiscoverMarkets(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

// fakeBooks serves books per token and can fail selectively.
type fakeBooks struct {
	books map[string]domain.TokenBook
	fail  map[string]error
}

func (f *fakeBooks) GetBook(_ context.Context, tokenID string) (domain.TokenBook, error) {
	if err, ok := f.fail[tokenID]; ok {
		return domain.TokenBook{}, err
	}
	return f.books[tokenID], nil
}

func TestFetchOrderbookBothSides(t *testing.T) {
	books := &fakeBooks{books: map[string]domain.TokenBook{
		"m1-y": {
			Asks: []domain.OrderbookLevel{{Price: 0.55, Size: 10}, {Price: 0.47, Size: 80}},
			Bids: []domain.OrderbookLevel{{Price: 0.44, Size: 30}},
		},
		"m1-n": {
			Asks: []domain.OrderbookLevel{{Price: 0.48, Size: 120}},
		},
	}}

	f := NewFetcher(books, time.Second, testLogger())
	snap, ok := f.FetchOrderbook(context.Background(), market("m1", "Bitcoin Up or Down", true, false))
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.YesBestAsk == nil || snap.YesBestAsk.Price != 0.47 {
		t.Errorf("yes best ask = %+v", snap.YesBestAsk)
	}
	if snap.YesBestBid == nil || snap.YesBestBid.Price != 0.44 {
		t.Errorf("yes best bid = %+v", snap.YesBestBid)
	}
	if snap.NoBestAsk == nil || snap.NoBestAsk.Price != 0.48 {
		t.Errorf("no best ask = %+v", snap.NoBestAsk)
	}
	// The NO side had no bids; that surfaces as a nil level, not a failure.
	if snap.NoBestBid != nil {
		t.Errorf("no best bid = %+v, want nil", snap.NoBestBid)
	}
}

func TestFetchOrderbookDropsSnapshotOnFailure(t *testing.T) {
	books := &fakeBooks{
		books: map[string]domain.TokenBook{
			"m1-y": {Asks: []domain.OrderbookLevel{{Price: 0.47, Size: 80}}},
		},
		fail: map[string]error{"m1-n": errors.New("book unavailable")},
	}

	f := NewFetcher(books, time.Second, testLogger())
	if _, ok := f.FetchOrderbook(context.Background(), market("m1", "Bitcoin Up or Down", true, false)); ok {
		t.Error("a one-sided fetch must drop the snapshot")
	}
}
