package broker

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// BidQuoter resolves the exit price for flattening a one-sided position.
type BidQuoter interface {
	BestBid(ctx context.Context, tokenID string) (float64, error)
}

// BookReader is the slice of the venue client the quoter needs.
type BookReader interface {
	GetBook(ctx context.Context, tokenID string) (domain.TokenBook, error)
}

// VenueBidQuoter quotes the live best bid from the venue's order book.
type VenueBidQuoter struct {
	books BookReader
}

var _ BidQuoter = (*VenueBidQuoter)(nil)

func NewVenueBidQuoter(books BookReader) *VenueBidQuoter {
	return &VenueBidQuoter{books: books}
}

// BestBid returns the highest bid for the token. An empty bid side is an
// error; the caller falls back to a discounted entry price.
func (q *VenueBidQuoter) BestBid(ctx context.Context, tokenID string) (float64, error) {
	book, err := q.books.GetBook(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	bid, ok := book.BestBid()
	if !ok {
		return 0, fmt.Errorf("broker: no bids for token %s: %w", tokenID, domain.ErrNotFound)
	}
	return bid.Price, nil
}
