// Package scanner discovers candidate markets, snapshots their top-of-book,
// and evaluates each snapshot for a dutch-book arbitrage.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// MarketLister pages through the venue's market listing.
type MarketLister interface {
	ListMarkets(ctx context.Context, cursor string) (domain.MarketPage, error)
}

// Discovery walks the paginated listing and keeps the tradeable markets whose
// title matches one of the configured patterns.
type Discovery struct {
	client   MarketLister
	patterns []string
	maxPages int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDiscovery builds a Discovery. Patterns are matched case-insensitively as
// substrings of the market title.
func NewDiscovery(client MarketLister, patterns []string, maxPages int, timeout time.Duration, logger *slog.Logger) *Discovery {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Discovery{
		client:   client,
		patterns: lowered,
		maxPages: maxPages,
		timeout:  timeout,
		logger:   logger.With("component", "discovery"),
	}
}

// DiscoverMarkets scans up to maxPages listing pages and returns the matching
// tradeable markets. Each page fetch gets its own deadline, so one slow page
// cannot starve the rest of the walk. Any listing error aborts the whole pass:
// a partial discovery would silently shrink the scan universe.
func (d *Discovery) DiscoverMarkets(ctx context.Context) ([]domain.Market, error) {
	var (
		matched []domain.Market
		cursor  string
		scanned int
	)
	for page := 0; page < d.maxPages; page++ {
		mp, err := d.listPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("scanner: discovery page %d: %w", page+1, err)
		}
		scanned += len(mp.Markets)

		for _, m := range mp.Markets {
			if m.Tradeable() && d.titleMatches(m.Title) {
				matched = append(matched, m)
			}
		}

		if mp.NextCursor == "" {
			break
		}
		cursor = mp.NextCursor
	}

	d.logger.Debug("discovery pass complete", "scanned", scanned, "matched", len(matched))
	return matched, nil
}

func (d *Discovery) listPage(ctx context.Context, cursor string) (domain.MarketPage, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.client.ListMarkets(ctx, cursor)
}

func (d *Discovery) titleMatches(title string) bool {
	lower := strings.ToLower(title)
	for _, p := range d.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
