package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/ledger"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// BalanceService applies credits and debits to balance records. Every change
// goes through ledger.Append, so it lands as one uniquely identified
// transaction in a single atomic read-modify-write.
type BalanceService struct {
	balances repository.BalanceRepository
	profiles repository.ProfileRepository
	provider *ProfileService
	txCap    int
	logger   *slog.Logger
	now      func() time.Time
}

func NewBalanceService(
	balances repository.BalanceRepository,
	profiles repository.ProfileRepository,
	provider *ProfileService,
	txCap int,
	logger *slog.Logger,
) *BalanceService {
	if txCap <= 0 {
		txCap = ledger.DefaultCap
	}
	return &BalanceService{
		balances: balances,
		profiles: profiles,
		provider: provider,
		txCap:    txCap,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the user's balance record. A user without a record has a zero
// balance; nothing is written.
func (s *BalanceService) Get(ctx context.Context, userID string) (*model.Balance, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user id")
	}
	rec, err := s.balances.Get(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return model.NewBalance(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/balance: reading %s: %w", userID, err)
	}
	return rec, nil
}

// CreditAdView pays reward for an ad view. A user seen for the first time is
// provisioned from the auth server; an unknown user is apperror.ErrNotFound.
//
// When adID is set the view is also recorded on the profile, which drives the
// ad cooldown and the profile stats. That second write is best effort: the
// credit has already been made and is not rolled back.
func (s *BalanceService) CreditAdView(ctx context.Context, userID string, reward int64, adID string) (*model.Balance, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("userId", "invalid userId format (expected: id-username)")
	}
	if reward <= 0 {
		return nil, apperror.ValidationFailed("reward", "reward must be a positive number")
	}

	exists, err := s.balances.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/balance: checking %s: %w", userID, err)
	}
	if !exists && s.provider != nil {
		if _, err := s.provider.Ensure(ctx, userID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	rec, err := s.balances.Update(ctx, userID, func(rec *model.Balance) error {
		ledger.Append(rec, model.Transaction{
			Amount: reward,
			Type:   model.TxTypeAdView,
		}, s.txCap, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/balance: crediting %s: %w", userID, err)
	}

	if adID != "" {
		s.recordAdView(ctx, userID, adID, reward, now)
	}
	return rec, nil
}

func (s *BalanceService) recordAdView(ctx context.Context, userID, adID string, reward int64, now time.Time) {
	_, err := s.profiles.Update(ctx, userID, func(p *model.Profile) error {
		if p.AdViews == nil {
			p.AdViews = make(map[string]int64)
		}
		p.AdViews[adID] = now.Unix()
		p.Stats.TotalAdsViewed++
		p.Stats.TotalEarned += reward
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to record ad view on profile",
			slog.String("user_id", userID),
			slog.String("ad_id", adID),
			slog.String("error", err.Error()),
		)
	}
}

// ApplyNetChange adds a client's accumulated delta to the balance as one
// net_change transaction. A zero delta writes nothing and returns the current
// record. The result may go negative; the server does not second-guess the
// client's spending.
func (s *BalanceService) ApplyNetChange(ctx context.Context, userID string, delta int64) (*model.Balance, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user id")
	}
	if delta == 0 {
		return s.Get(ctx, userID)
	}

	rec, err := s.balances.Update(ctx, userID, func(rec *model.Balance) error {
		ledger.Append(rec, model.Transaction{
			Amount:      delta,
			Type:        model.TxTypeNetChange,
			Description: "Net change from client",
		}, s.txCap, s.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/balance: applying net change for %s: %w", userID, err)
	}

	s.logger.Debug("net change applied",
		slog.String("user_id", userID),
		slog.Int64("delta", delta),
		slog.Int64("balance", rec.Balance),
	)
	return rec, nil
}

// credit appends a typed transaction for the task and platform services.
func (s *BalanceService) credit(ctx context.Context, userID string, amount int64, txType, description string) (*model.Balance, error) {
	rec, err := s.balances.Update(ctx, userID, func(rec *model.Balance) error {
		ledger.Append(rec, model.Transaction{
			Amount:      amount,
			Type:        txType,
			Description: description,
		}, s.txCap, s.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/balance: crediting %s: %w", userID, err)
	}
	return rec, nil
}
