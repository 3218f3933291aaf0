// Package reports builds read-side ledger reports under accrual or cash basis.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/settings"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

// SettingsReader returns committed org settings.
type SettingsReader interface {
	Get(ctx context.Context, orgID int64) (settings.OrgSettings, error)
}

const reportBuildTimeout = 2 * time.Minute

// Aging kinds.
const (
	AgingReceivable = "INVOICE"
	AgingPayable    = "BILL"
)

// Service builds reports from committed ledger rows. Builds of the same report
// are shared between concurrent callers and cached per org.
type Service struct {
	repo     Repository
	settings SettingsReader
	cache    *Cache
	logger   *slog.Logger
	group    singleflight.Group
}

func NewService(repo Repository, settings SettingsReader, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, settings: settings, cache: cache, logger: logger}
}

// Invalidate drops cached reports of orgID.
func (s *Service) Invalidate(ctx context.Context, orgID int64) error {
	return s.cache.Invalidate(ctx, orgID)
}

// TrialBalance reports opening balances at from and movements from..to.
func (s *Service) TrialBalance(ctx context.Context, orgID int64, from, to time.Time) (TrialBalance, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	cfg, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return TrialBalance{}, err
	}
	parts := []string{"tb", string(cfg.ReportBasis), dateKey(from), dateKey(to)}
	return cached(ctx, s, orgID, parts, func(ctx context.Context) (TrialBalance, error) {
		var period, opening []AccountBalance
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			period, err = s.balances(gctx, orgID, cfg.ReportBasis, Range{From: &from, To: to})
			return err
		})
		g.Go(func() error {
			var err error
			opening, err = s.balances(gctx, orgID, cfg.ReportBasis, Range{To: from.AddDate(0, 0, -1)})
			return err
		})
		if err := g.Wait(); err != nil {
			return TrialBalance{}, err
		}
		openings := make(map[int64]AccountBalance, len(opening))
		for _, b := range opening {
			openings[b.AccountID] = b
		}
		for i := range period {
			period[i].Opening = openings[period[i].AccountID].Closing()
		}
		return BuildTrialBalance(period), nil
	})
}

// ProfitAndLoss reports revenue and expense movements from..to.
func (s *Service) ProfitAndLoss(ctx context.Context, orgID int64, from, to time.Time) (ProfitAndLoss, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	cfg, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	parts := []string{"pl", string(cfg.ReportBasis), dateKey(from), dateKey(to)}
	return cached(ctx, s, orgID, parts, func(ctx context.Context) (ProfitAndLoss, error) {
		balances, err := s.balances(ctx, orgID, cfg.ReportBasis, Range{From: &from, To: to})
		if err != nil {
			return ProfitAndLoss{}, err
		}
		return BuildProfitAndLoss(balances), nil
	})
}

// BalanceSheet reports cumulative balances as of asOf with profit and loss
// rolled into current-year and retained earnings.
func (s *Service) BalanceSheet(ctx context.Context, orgID int64, asOf time.Time) (BalanceSheet, error) {
	if asOf.IsZero() {
		return BalanceSheet{}, fmt.Errorf("%w: as_of required", kinds.ErrValidation)
	}
	asOf = periods.UTCDay(asOf)
	cfg, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return BalanceSheet{}, err
	}
	fyStart := cfg.FiscalYearStart(asOf)
	parts := []string{"bs", string(cfg.ReportBasis), dateKey(asOf), dateKey(fyStart)}
	return cached(ctx, s, orgID, parts, func(ctx context.Context) (BalanceSheet, error) {
		var cumulative, current []AccountBalance
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			cumulative, err = s.balances(gctx, orgID, cfg.ReportBasis, Range{To: asOf})
			return err
		})
		g.Go(func() error {
			var err error
			current, err = s.balances(gctx, orgID, cfg.ReportBasis, Range{From: &fyStart, To: asOf})
			return err
		})
		if err := g.Wait(); err != nil {
			return BalanceSheet{}, err
		}
		lifetime := BuildProfitAndLoss(cumulative).NetIncome
		currentYear := BuildProfitAndLoss(current).NetIncome
		return BuildBalanceSheet(cumulative, currentYear, lifetime.Sub(currentYear)), nil
	})
}

// ARAging buckets open invoices as of asOf.
func (s *Service) ARAging(ctx context.Context, orgID int64, asOf time.Time) (Aging, error) {
	return s.aging(ctx, orgID, AgingReceivable, asOf)
}

// APAging buckets open bills as of asOf.
func (s *Service) APAging(ctx context.Context, orgID int64, asOf time.Time) (Aging, error) {
	return s.aging(ctx, orgID, AgingPayable, asOf)
}

func (s *Service) aging(ctx context.Context, orgID int64, docType string, asOf time.Time) (Aging, error) {
	if asOf.IsZero() {
		return Aging{}, fmt.Errorf("%w: as_of required", kinds.ErrValidation)
	}
	asOf = periods.UTCDay(asOf)
	parts := []string{"aging", strings.ToLower(docType), dateKey(asOf)}
	return cached(ctx, s, orgID, parts, func(ctx context.Context) (Aging, error) {
		docs, err := s.repo.OpenDocuments(ctx, orgID, docType, asOf)
		if err != nil {
			return Aging{}, err
		}
		return BuildAging(docs, asOf), nil
	})
}

// VATSummary totals the mapped VAT accounts from..to.
func (s *Service) VATSummary(ctx context.Context, orgID int64, from, to time.Time) (VATSummary, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return VATSummary{}, err
	}
	cfg, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return VATSummary{}, err
	}
	parts := []string{"vat", string(cfg.ReportBasis), dateKey(from), dateKey(to)}
	return cached(ctx, s, orgID, parts, func(ctx context.Context) (VATSummary, error) {
		output, input, err := s.repo.VATAccounts(ctx, orgID)
		if err != nil {
			return VATSummary{}, err
		}
		balances, err := s.balances(ctx, orgID, cfg.ReportBasis, Range{From: &from, To: to})
		if err != nil {
			return VATSummary{}, err
		}
		summary := BuildVATSummary(balances, output, input)
		summary.From, summary.To = dateKey(from), dateKey(to)
		return summary, nil
	})
}

// balances loads per-account movements in rng. On cash basis accrual-document
// lines are replaced by recognition synthesized from payment allocations.
func (s *Service) balances(ctx context.Context, orgID int64, basis settings.ReportBasis, rng Range) ([]AccountBalance, error) {
	if basis != settings.BasisCash {
		return s.repo.AccountBalances(ctx, orgID, rng, false)
	}
	var (
		base   []AccountBalance
		allocs []CashAllocation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = s.repo.AccountBalances(gctx, orgID, rng, true)
		return err
	})
	g.Go(func() error {
		var err error
		allocs, err = s.repo.CashAllocations(gctx, orgID, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	movements, err := SynthesizeCashBasis(allocs)
	if err != nil {
		return nil, err
	}
	return ApplyMovements(base, movements)
}

// cached builds a report once per key across concurrent callers and stores it
// in the org's versioned cache.
func cached[T any](ctx context.Context, s *Service, orgID int64, parts []string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	key, err := s.cache.BuildKey(ctx, orgID, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Int64("org_id", orgID), slog.Any("error", err))
		return build(ctx)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		// Joined callers share this build; one caller leaving must not cancel it.
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportBuildTimeout)
		defer cancel()
		var out T
		err := s.cache.FetchJSON(buildCtx, key, &out, func(ctx context.Context) (any, error) {
			return build(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func normalizeRange(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from and to required", kinds.ErrValidation)
	}
	from, to = periods.UTCDay(from), periods.UTCDay(to)
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from after to", kinds.ErrValidation)
	}
	return from, to, nil
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
