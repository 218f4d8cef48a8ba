package broker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// OrderPlacer is the slice of the venue client the live broker needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// LiveBroker submits real orders to the venue. With dryRun enabled it reports
// immediate full fills without touching the network, which lets the live
// pipeline be rehearsed end to end.
type LiveBroker struct {
	placer OrderPlacer
	dryRun bool
	logger *slog.Logger
}

var _ Broker = (*LiveBroker)(nil)

func NewLiveBroker(placer OrderPlacer, dryRun bool, logger *slog.Logger) *LiveBroker {
	return &LiveBroker{
		placer: placer,
		dryRun: dryRun,
		logger: logger.With("component", "live_broker", "dry_run", dryRun),
	}
}

func (b *LiveBroker) Mode() domain.TradingMode { return domain.ModeLive }

// PlaceArbOrders submits both legs concurrently. A failed round-trip becomes
// a TRANSPORT_ERROR leg result instead of an error return: the other leg may
// have filled, and the caller must see both outcomes to recover correctly.
func (b *LiveBroker) PlaceArbOrders(ctx context.Context, opp domain.ArbOpportunity, _ domain.BotConfig) (domain.PairResult, error) {
	if b.dryRun {
		b.logger.Info("dry run: reporting both legs filled", "market_id", opp.MarketID, "shares", opp.Shares)
		return domain.PairResult{
			Yes: dryRunFill("dry-yes-"+opp.YesTokenID, opp.YesAsk, float64(opp.Shares)),
			No:  dryRunFill("dry-no-"+opp.NoTokenID, opp.NoAsk, float64(opp.Shares)),
		}, nil
	}

	var result domain.PairResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Yes = b.placeLeg(gctx, domain.OrderRequest{
			TokenID: opp.YesTokenID,
			Side:    domain.SideBuy,
			Price:   opp.YesAsk,
			Shares:  float64(opp.Shares),
		})
		return nil
	})
	g.Go(func() error {
		result.No = b.placeLeg(gctx, domain.OrderRequest{
			TokenID: opp.NoTokenID,
			Side:    domain.SideBuy,
			Price:   opp.NoAsk,
			Shares:  float64(opp.Shares),
		})
		return nil
	})
	g.Wait()

	return result, nil
}

func (b *LiveBroker) placeLeg(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	res, err := b.placer.PlaceOrder(ctx, req)
	if err != nil {
		b.logger.Error("leg submission failed", "token_id", req.TokenID, "error", err)
		return domain.OrderResult{Status: domain.LegTransportError, Err: err}
	}
	return res
}

// FlattenPosition sells the stray shares at the given exit price.
func (b *LiveBroker) FlattenPosition(ctx context.Context, tokenID string, shares, exitPrice float64, _ domain.BotConfig) (bool, error) {
	if b.dryRun {
		b.logger.Info("dry run: reporting flatten filled", "token_id", tokenID, "shares", shares)
		return true, nil
	}

	res, err := b.placer.PlaceOrder(ctx, domain.OrderRequest{
		TokenID: tokenID,
		Side:    domain.SideSell,
		Price:   exitPrice,
		Shares:  shares,
	})
	if err != nil {
		return false, err
	}
	return res.Filled(), nil
}

func dryRunFill(orderID string, price, shares float64) domain.OrderResult {
	return domain.OrderResult{
		OrderID:      orderID,
		Status:       domain.LegFilled,
		FilledShares: shares,
		AvgPrice:     price,
	}
}
