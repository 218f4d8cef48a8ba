package broker

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

const (
	simMinLatency = 300 * time.Millisecond
	simMaxLatency = 800 * time.Millisecond

	// Per-leg outcome thresholds on a uniform [0,1) draw.
	simFillThreshold    = 0.20 // above: full fill
	simPartialThreshold = 0.05 // (0.05, 0.20]: partial fill; at or below: no fill

	simFlattenFillRate = 0.90
)

// SimBroker simulates fills for paper trading. Legs fill at their limit price
// with randomized latency and a small chance of partial or missed fills, so
// the one-sided recovery path gets exercised without risking capital.
type SimBroker struct {
	mu     sync.Mutex
	rng    *rand.Rand
	roll   func() float64
	sleep  func(ctx context.Context, d time.Duration)
	logger *slog.Logger
}

var _ Broker = (*SimBroker)(nil)

// SimOption customizes a SimBroker, mainly for deterministic tests.
type SimOption func(*SimBroker)

// WithRoll overrides the uniform draw source.
func WithRoll(roll func() float64) SimOption {
	return func(s *SimBroker) { s.roll = roll }
}

// WithSleep overrides the latency sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) SimOption {
	return func(s *SimBroker) { s.sleep = sleep }
}

func NewSimBroker(logger *slog.Logger, opts ...SimOption) *SimBroker {
	s := &SimBroker{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.With("component", "sim_broker"),
	}
	s.roll = func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.rng.Float64()
	}
	s.sleep = func(ctx context.Context, d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SimBroker) Mode() domain.TradingMode { return domain.ModePaper }

// legDraw holds the pre-computed randomness for one simulated leg.
type legDraw struct {
	outcome float64
	size    float64
	latency time.Duration
}

// PlaceArbOrders simulates both legs concurrently. All random draws happen up
// front so the outcome is independent of goroutine scheduling.
func (s *SimBroker) PlaceArbOrders(ctx context.Context, opp domain.ArbOpportunity, _ domain.BotConfig) (domain.PairResult, error) {
	yesDraw := s.drawLeg()
	noDraw := s.drawLeg()

	var result domain.PairResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.Yes = s.simulateLeg(ctx, opp.YesTokenID, opp.YesAsk, float64(opp.Shares), yesDraw)
	}()
	go func() {
		defer wg.Done()
		result.No = s.simulateLeg(ctx, opp.NoTokenID, opp.NoAsk, float64(opp.Shares), noDraw)
	}()
	wg.Wait()

	s.logger.Debug("simulated pair",
		"market_id", opp.MarketID,
		"yes_status", string(result.Yes.Status),
		"no_status", string(result.No.Status),
	)
	return result, nil
}

func (s *SimBroker) drawLeg() legDraw {
	return legDraw{
		outcome: s.roll(),
		size:    s.roll(),
		latency: simMinLatency + time.Duration(s.roll()*float64(simMaxLatency-simMinLatency)),
	}
}

func (s *SimBroker) simulateLeg(ctx context.Context, tokenID string, price, shares float64, draw legDraw) domain.OrderResult {
	s.sleep(ctx, draw.latency)

	res := domain.OrderResult{OrderID: "sim-" + tokenID}
	switch {
	case draw.outcome > simFillThreshold:
		res.Status = domain.LegFilled
		res.FilledShares = shares
		res.AvgPrice = price
	case draw.outcome > simPartialThreshold:
		filled := math.Floor(shares * (0.3 + draw.size*0.5))
		if filled < 1 {
			filled = 1
		}
		res.Status = domain.LegPartial
		res.FilledShares = filled
		res.AvgPrice = price
	default:
		res.Status = domain.LegUnfilled
	}
	return res
}

// FlattenPosition simulates unwinding a one-sided fill; most flattens succeed.
func (s *SimBroker) FlattenPosition(ctx context.Context, tokenID string, shares, exitPrice float64, _ domain.BotConfig) (bool, error) {
	draw := s.drawLeg()
	s.sleep(ctx, draw.latency)

	filled := draw.outcome < simFlattenFillRate
	s.logger.Debug("simulated flatten", "token_id", tokenID, "shares", shares, "exit_price", exitPrice, "filled", filled)
	return filled, nil
}
