package arbitrage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/looper/internal/ledger"
)

// Config carries the search parameters.
type Config struct {
	MaxLoopLength int
	Fund          string
	Interval      time.Duration
}

// Service periodically walks the mirrored pair graph, closes loops and
// scores them against the current books, bounded by the fund's available
// balance in each loop's starting coin.
type Service struct {
	ledger *ledger.Ledger
	cfg    Config
	logger *zap.Logger
	onLoop func(Opportunity)
}

func NewService(lgr *ledger.Ledger, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: lgr, cfg: cfg, logger: logger}
}

// OnOpportunity installs the callback invoked for every profitable loop.
// Must be set before Run.
func (s *Service) OnOpportunity(fn func(Opportunity)) { s.onLoop = fn }

// Run executes search passes until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("arbitrage search started",
		zap.Int("max_loop_length", s.cfg.MaxLoopLength),
		zap.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("arbitrage search stopped")
			return
		case <-ticker.C:
			if err := s.pass(ctx); err != nil {
				return
			}
		}
	}
}

// pass runs one full search on the owner goroutine so the graph and books it
// reads cannot change underneath it.
func (s *Service) pass(ctx context.Context) error {
	started := time.Now()
	var opportunities []Opportunity

	err := s.ledger.Do(ctx, func(st *ledger.State) {
		loops := FindLoops(st.Pairs, s.cfg.MaxLoopLength)
		loopsExamined.Add(float64(len(loops)))

		for _, loop := range loops {
			startCoin := loop.Coins[0]
			available := st.Balance(startCoin.Currency()).Fund(s.cfg.Fund).Available()
			if !available.IsPositive() {
				continue
			}
			if opp, ok := Evaluate(loop, available); ok {
				opportunities = append(opportunities, *opp)
			}
		}
	})
	if err != nil {
		return err
	}

	searchDuration.Observe(time.Since(started).Seconds())

	for _, opp := range opportunities {
		opportunitiesFound.Inc()
		s.logger.Info("profitable loop",
			zap.String("loop", opp.Loop.String()),
			zap.String("start", opp.StartAmount.String()),
			zap.String("end", opp.EndAmount.String()),
			zap.String("profit", opp.Profit().String()))
		if s.onLoop != nil {
			s.onLoop(opp)
		}
	}
	return nil
}
