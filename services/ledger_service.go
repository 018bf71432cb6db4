package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/courtside/livescore/models"
	"github.com/courtside/livescore/repositories"
	"github.com/google/uuid"
)

// refundTimeout ограничивает компенсирующий refund, когда исходный контекст
// запроса уже отменён.
const refundTimeout = 10 * time.Second

type LedgerService interface {
	// Debit списывает amount кредитов. Никогда не уводит баланс в минус.
	Debit(ctx context.Context, userID int, amount int64, reason string) (string, error)
	// Credit зачисляет amount кредитов не более одного раза на externalRef.
	// Повторная доставка подтверждения платежа возвращает id исходной
	// транзакции и не меняет баланс.
	Credit(ctx context.Context, userID int, amount int64, externalRef string) (string, error)
	Balance(ctx context.Context, userID int) (int64, error)
	Transactions(ctx context.Context, userID int, limit, offset int) ([]*models.CreditTransaction, error)
	// ChargeTournamentFee — сага: дебет, затем шаг создания турнира во внешней
	// админке; при неудаче шага — компенсирующий refund.
	ChargeTournamentFee(ctx context.Context, organizerID int, fee int64, create func(ctx context.Context) error) error
	// Reconcile сверяет баланс с суммой транзакций и замораживает счёт
	// при расхождении.
	Reconcile(ctx context.Context, userID int) error
}

type ledgerService struct {
	ledger repositories.LedgerRepository
	logger *slog.Logger

	mu     sync.RWMutex
	frozen map[int]bool
}

func NewLedgerService(ledger repositories.LedgerRepository, logger *slog.Logger) LedgerService {
	return &ledgerService{
		ledger: ledger,
		logger: logger,
		frozen: make(map[int]bool),
	}
}

func (s *ledgerService) Debit(ctx context.Context, userID int, amount int64, reason string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	if s.isFrozen(userID) {
		return "", ErrAccountFrozen
	}

	txn := &models.CreditTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    -amount,
		Kind:      models.KindDeduction,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.Apply(ctx, txn); err != nil {
		return "", s.mapLedgerError(userID, err)
	}
	return txn.ID, nil
}

func (s *ledgerService) Credit(ctx context.Context, userID int, amount int64, externalRef string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	if externalRef == "" {
		return "", ErrExternalRefRequired
	}
	if s.isFrozen(userID) {
		return "", ErrAccountFrozen
	}

	txn := &models.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Kind:        models.KindPurchase,
		Reason:      "credit purchase",
		ExternalRef: &externalRef,
		CreatedAt:   time.Now().UTC(),
	}
	id, applied, err := s.ledger.ApplyOnce(ctx, txn)
	if err != nil {
		return "", s.mapLedgerError(userID, err)
	}
	if !applied {
		s.logger.Info("duplicate payment confirmation collapsed",
			slog.Int("user_id", userID),
			slog.String("external_ref", externalRef),
			slog.String("transaction_id", id),
		)
	}
	return id, nil
}

func (s *ledgerService) Balance(ctx context.Context, userID int) (int64, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return 0, s.mapLedgerError(userID, err)
	}
	return balance.Credits, nil
}

func (s *ledgerService) Transactions(ctx context.Context, userID int, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	txns, err := s.ledger.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}
	return txns, nil
}

func (s *ledgerService) ChargeTournamentFee(ctx context.Context, organizerID int, fee int64, create func(ctx context.Context) error) error {
	debitID, err := s.Debit(ctx, organizerID, fee, "tournament_fee")
	if err != nil {
		return err
	}

	if err := create(ctx); err != nil {
		// Два хранилища, одна логическая операция: создание не удалось,
		// возвращаем списанное компенсирующей транзакцией. Создание чаще
		// всего падает из-за отмены исходного запроса, поэтому компенсация
		// идёт на отвязанном контексте со своим таймаутом.
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
		defer cancel()
		if _, refundErr := s.refund(refundCtx, organizerID, fee, "tournament_fee_refund"); refundErr != nil {
			s.logger.Error("compensating refund failed, manual reconciliation required",
				slog.Int("user_id", organizerID),
				slog.String("debit_transaction_id", debitID),
				slog.Any("create_error", err),
				slog.Any("refund_error", refundErr),
			)
			return errors.Join(err, refundErr)
		}
		return fmt.Errorf("%w: %w", ErrTournamentCreateFailed, err)
	}
	return nil
}

func (s *ledgerService) Reconcile(ctx context.Context, userID int) error {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return s.mapLedgerError(userID, err)
	}
	sum, err := s.ledger.SumByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to sum transactions for user %d: %w", userID, err)
	}
	if balance.Credits != sum {
		s.freeze(userID)
		s.logger.Error("ledger reconciliation mismatch, account frozen",
			slog.Int("user_id", userID),
			slog.Int64("balance", balance.Credits),
			slog.Int64("transaction_sum", sum),
		)
		return ErrLedgerCorrupted
	}
	return nil
}

func (s *ledgerService) refund(ctx context.Context, userID int, amount int64, reason string) (string, error) {
	txn := &models.CreditTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Kind:      models.KindRefund,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.Apply(ctx, txn); err != nil {
		return "", s.mapLedgerError(userID, err)
	}
	return txn.ID, nil
}

func (s *ledgerService) mapLedgerError(userID int, err error) error {
	switch {
	case errors.Is(err, repositories.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repositories.ErrInsufficientCredits):
		return ErrInsufficientFunds
	case errors.Is(err, repositories.ErrLedgerInconsistent):
		// Частично применённая запись — дальше писать по этому счёту нельзя.
		s.freeze(userID)
		s.logger.Error("ledger write diverged, account frozen",
			slog.Int("user_id", userID),
			slog.Any("error", err),
		)
		return ErrLedgerCorrupted
	default:
		return err
	}
}

func (s *ledgerService) isFrozen(userID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen[userID]
}

func (s *ledgerService) freeze(userID int) {
	s.mu.Lock()
	s.frozen[userID] = true
	s.mu.Unlock()
}
