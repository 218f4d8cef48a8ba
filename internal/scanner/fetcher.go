package scanner

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// BookSource fetches the order book for one outcome token.
type BookSource interface {
	GetBook(ctx context.Context, tokenID string) (domain.TokenBook, error)
}

// Fetcher snapshots the top-of-book for both outcomes of a market. The two
// book fetches run concurrently; failure on either side drops the whole
// snapshot since a one-sided view cannot be evaluated.
type Fetcher struct {
	books   BookSource
	timeout time.Duration
	logger  *slog.Logger
}

func NewFetcher(books BookSource, timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		books:   books,
		timeout: timeout,
		logger:  logger.With("component", "fetcher"),
	}
}

// FetchOrderbook returns a fresh two-sided snapshot for the market, or false
// when either book could not be fetched.
func (f *Fetcher) FetchOrderbook(ctx context.Context, m domain.Market) (domain.MarketOrderbook, bool) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var yesBook, noBook domain.TokenBook

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		yesBook, err = f.books.GetBook(gctx, m.YesTokenID)
		return err
	})
	g.Go(func() error {
		var err error
		noBook, err = f.books.GetBook(gctx, m.NoTokenID)
		return err
	})
	if err := g.Wait(); err != nil {
		f.logger.Warn("orderbook fetch failed", "market_id", m.ID, "title", m.Title, "error", err)
		return domain.MarketOrderbook{}, false
	}

	snap := domain.MarketOrderbook{
		MarketID:    m.ID,
		Title:       m.Title,
		ConditionID: m.ConditionID,
		YesTokenID:  m.YesTokenID,
		NoTokenID:   m.NoTokenID,
	}
	if lvl, ok := yesBook.BestAsk(); ok {
		snap.YesBestAsk = &lvl
	}
	if lvl, ok := yesBook.BestBid(); ok {
		snap.YesBestBid = &lvl
	}
	if lvl, ok := noBook.BestAsk(); ok {
		snap.NoBestAsk = &lvl
	}
	if lvl, ok := noBook.BestBid(); ok {
		snap.NoBestBid = &lvl
	}
	return snap, true
}
