// Package tokens implements tenant-scoped AI resource accounting: a prepaid
// balance with an append-only signed ledger, and a rolling monthly usage cap
// checked against the tenant's plan allowance.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saleslog/backend/internal/models"
)

// ErrQuotaExceeded is returned when a provider call would push the tenant's
// monthly usage past its allowance. It is a rejected request, not a provider
// failure: callers must not record a job failure for it.
var ErrQuotaExceeded = errors.New("monthly token quota exceeded")

// Usage warning levels for getUsageSummary.
const (
	WarningLevelOK       = "ok"
	WarningLevelWarning  = "warning"
	WarningLevelExceeded = "exceeded"
)

// BalanceStore is the balance + ledger persistence needed by the service.
type BalanceStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	DebitIfSufficient(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, amount int64) (bool, error)
	CreditUpsert(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, amount int64) error
	InsertLedgerTx(ctx context.Context, tx pgx.Tx, e *models.TokenLedgerEntry) error
}

// UsageStore is the usage-event persistence needed by the service.
type UsageStore interface {
	Insert(ctx context.Context, e *models.UsageEvent) error
	SumWindow(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error)
	SumWindowByFeature(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (map[string]int64, error)
}

// PlanSource resolves the tenant's monthly allowance.
type PlanSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// ChargeResult reports the outcome of a prepaid debit. Succeeded == false
// means insufficient funds: no ledger entry, no balance change, no error.
type ChargeResult struct {
	Succeeded bool       `json:"succeeded"`
	LedgerID  *uuid.UUID `json:"ledger_id,omitempty"`
}

// UsageSummary aggregates the current month's usage against the allowance.
type UsageSummary struct {
	Limit        int64            `json:"limit"`
	Used         int64            `json:"used"`
	Remaining    int64            `json:"remaining"`
	ByFeature    map[string]int64 `json:"by_feature"`
	WarningLevel string           `json:"warning_level"`
}

type Service struct {
	Balances     BalanceStore
	Usage        UsageStore
	Plans        PlanSource
	DefaultLimit int64
	Logger       *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewService(balances BalanceStore, usage UsageStore, plans PlanSource, defaultLimit int64, logger *slog.Logger) *Service {
	return &Service{
		Balances:     balances,
		Usage:        usage,
		Plans:        plans,
		DefaultLimit: defaultLimit,
		Logger:       logger,
		now:          time.Now,
	}
}

// Charge debits the tenant's prepaid balance. The conditional update and the
// ledger insert share one transaction: if the ledger insert fails the debit
// rolls back, so the ledger always sums to the balance.
func (s *Service) Charge(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID, amount int64, reason, feature string) (ChargeResult, error) {
	if amount <= 0 {
		return ChargeResult{}, fmt.Errorf("charge amount must be positive, got %d", amount)
	}
	tx, err := s.Balances.Begin(ctx)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("begin charge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := s.Balances.DebitIfSufficient(ctx, tx, tenantID, amount)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("debit balance: %w", err)
	}
	if !ok {
		return ChargeResult{Succeeded: false}, nil
	}

	entry := &models.TokenLedgerEntry{
		TenantID:  tenantID,
		UserID:    userID,
		Reason:    reason,
		Feature:   optional(feature),
		Delta:     -amount,
		YearMonth: s.now().UTC().Format("2006-01"),
	}
	if err := s.Balances.InsertLedgerTx(ctx, tx, entry); err != nil {
		return ChargeResult{}, fmt.Errorf("insert debit ledger entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ChargeResult{}, fmt.Errorf("commit charge: %w", err)
	}
	return ChargeResult{Succeeded: true, LedgerID: &entry.ID}, nil
}

// Grant credits the tenant's balance, creating the balance row on first use,
// with the positive ledger entry in the same transaction.
func (s *Service) Grant(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID, amount int64, reason string) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	tx, err := s.Balances.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin grant tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.Balances.CreditUpsert(ctx, tx, tenantID, amount); err != nil {
		return uuid.Nil, fmt.Errorf("credit balance: %w", err)
	}
	entry := &models.TokenLedgerEntry{
		TenantID:  tenantID,
		UserID:    userID,
		Reason:    reason,
		Delta:     amount,
		YearMonth: s.now().UTC().Format("2006-01"),
	}
	if err := s.Balances.InsertLedgerTx(ctx, tx, entry); err != nil {
		return uuid.Nil, fmt.Errorf("insert credit ledger entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit grant: %w", err)
	}
	return entry.ID, nil
}

// CheckQuota rejects with ErrQuotaExceeded when this month's usage plus the
// estimate would exceed the tenant's allowance. The check and the eventual
// RecordUsage are separate statements with a provider call in between, so
// concurrent requests can transiently overshoot the cap.
func (s *Service) CheckQuota(ctx context.Context, tenantID uuid.UUID, estimate int64) error {
	limit, err := s.allowance(ctx, tenantID)
	if err != nil {
		return err
	}
	from, to := s.monthWindow()
	used, err := s.Usage.SumWindow(ctx, tenantID, from, to)
	if err != nil {
		return fmt.Errorf("sum monthly usage: %w", err)
	}
	if used+estimate > limit {
		return fmt.Errorf("%w: used %d + estimate %d > limit %d", ErrQuotaExceeded, used, estimate, limit)
	}
	return nil
}

// RecordUsage appends one usage event after a successful provider call.
func (s *Service) RecordUsage(ctx context.Context, tenantID, userID uuid.UUID, feature, model string, inputTokens, outputTokens int64, metadata json.RawMessage) error {
	return s.Usage.Insert(ctx, &models.UsageEvent{
		TenantID:     tenantID,
		UserID:       userID,
		Feature:      feature,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Metadata:     metadata,
	})
}

// Summary aggregates the current month by feature. warning at 80% of the
// limit, exceeded at 100%.
func (s *Service) Summary(ctx context.Context, tenantID uuid.UUID) (*UsageSummary, error) {
	limit, err := s.allowance(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	from, to := s.monthWindow()
	byFeature, err := s.Usage.SumWindowByFeature(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum monthly usage by feature: %w", err)
	}
	var used int64
	for _, v := range byFeature {
		used += v
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	level := WarningLevelOK
	switch {
	case used >= limit:
		level = WarningLevelExceeded
	case used*5 >= limit*4: // 80%
		level = WarningLevelWarning
	}
	return &UsageSummary{
		Limit:        limit,
		Used:         used,
		Remaining:    remaining,
		ByFeature:    byFeature,
		WarningLevel: level,
	}, nil
}

func (s *Service) allowance(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	tenant, err := s.Plans.GetByID(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("resolve tenant plan: %w", err)
	}
	if tenant.MonthlyTokenLimit != nil {
		return *tenant.MonthlyTokenLimit, nil
	}
	return s.DefaultLimit, nil
}

func (s *Service) monthWindow() (time.Time, time.Time) {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
