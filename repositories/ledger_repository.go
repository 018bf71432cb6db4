package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/courtside/livescore/models"
	"github.com/lib/pq"
)

var (
	ErrAccountNotFound     = errors.New("ledger account not found")
	ErrInsufficientCredits = errors.New("account credits are insufficient")
	// ErrLedgerInconsistent означает, что изменение баланса могло примениться
	// без парной записи транзакции. Это нарушение инвариантов хранилища,
	// сервис обязан остановить запись по такому счёту.
	ErrLedgerInconsistent = errors.New("balance change and transaction record diverged")
)

type LedgerRepository interface {
	GetBalance(ctx context.Context, userID int) (*models.AccountBalance, error)
	// Apply атомарно изменяет баланс на txn.Amount и добавляет запись
	// транзакции. Отрицательная сумма проходит только при достаточном балансе.
	Apply(ctx context.Context, txn *models.CreditTransaction) error
	// ApplyOnce — то же, но не более одного раза на txn.ExternalRef.
	// Возвращает id выигравшей транзакции и признак того, что применение
	// произошло в этом вызове (false — идемпотентный повтор).
	ApplyOnce(ctx context.Context, txn *models.CreditTransaction) (string, bool, error)
	ListByUser(ctx context.Context, userID int, limit, offset int) ([]*models.CreditTransaction, error)
	SumByUser(ctx context.Context, userID int) (int64, error)
}

type postgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) LedgerRepository {
	return &postgresLedgerRepository{db: db}
}

func (r *postgresLedgerRepository) GetBalance(ctx context.Context, userID int) (*models.AccountBalance, error) {
	query := `SELECT user_id, credits, updated_at FROM account_balances WHERE user_id = $1`

	balance := &models.AccountBalance{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&balance.UserID,
		&balance.Credits,
		&balance.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan balance for user %d: %w", userID, err)
	}
	return balance, nil
}

func (r *postgresLedgerRepository) Apply(ctx context.Context, txn *models.CreditTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.adjustBalance(ctx, tx, txn.UserID, txn.Amount); err != nil {
		return err
	}
	if err := r.insertTransaction(ctx, tx, txn); err != nil {
		// Баланс уже изменён внутри tx: если откат не удался, пара
		// "баланс + запись" разошлась и счёт требует ручной сверки.
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w: %v (rollback: %v)", ErrLedgerInconsistent, err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

func (r *postgresLedgerRepository) ApplyOnce(ctx context.Context, txn *models.CreditTransaction) (string, bool, error) {
	if txn.ExternalRef == nil || *txn.ExternalRef == "" {
		return "", false, errors.New("external reference is required for idempotent apply")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO credit_transactions (id, user_id, amount, kind, reason, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_ref) DO NOTHING`

	result, err := tx.ExecContext(ctx, insert,
		txn.ID, txn.UserID, txn.Amount, txn.Kind, txn.Reason, txn.ExternalRef, txn.CreatedAt,
	)
	if err != nil {
		return "", false, r.handleLedgerError(err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to check affected rows: %w", err)
	}

	if inserted == 0 {
		// Повторная доставка подтверждения: возвращаем исходную транзакцию,
		// баланс не трогаем.
		var existingID string
		lookup := `SELECT id FROM credit_transactions WHERE external_ref = $1`
		if err := tx.QueryRowContext(ctx, lookup, txn.ExternalRef).Scan(&existingID); err != nil {
			return "", false, fmt.Errorf("failed to look up transaction by external_ref %s: %w", *txn.ExternalRef, err)
		}
		if err := tx.Commit(); err != nil {
			return "", false, fmt.Errorf("failed to commit ledger transaction: %w", err)
		}
		return existingID, false, nil
	}

	if err := r.adjustBalance(ctx, tx, txn.UserID, txn.Amount); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return txn.ID, true, nil
}

func (r *postgresLedgerRepository) ListByUser(ctx context.Context, userID int, limit, offset int) ([]*models.CreditTransaction, error) {
	query := `
		SELECT id, user_id, amount, kind, reason, external_ref, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	txns := make([]*models.CreditTransaction, 0)
	for rows.Next() {
		txn := &models.CreditTransaction{}
		if scanErr := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Amount,
			&txn.Kind,
			&txn.Reason,
			&txn.ExternalRef,
			&txn.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", scanErr)
		}
		txns = append(txns, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during transaction rows iteration: %w", err)
	}
	return txns, nil
}

func (r *postgresLedgerRepository) SumByUser(ctx context.Context, userID int) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1`

	var sum int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions for user %d: %w", userID, err)
	}
	return sum, nil
}

// adjustBalance — условное изменение баланса. Условие credits + delta >= 0
// выполняется на стороне БД, поэтому конкурентные дебеты сериализуются
// блокировкой строки и никогда не уводят баланс в минус.
func (r *postgresLedgerRepository) adjustBalance(ctx context.Context, tx *sql.Tx, userID int, delta int64) error {
	update := `
		UPDATE account_balances
		SET credits = credits + $2, updated_at = now()
		WHERE user_id = $1 AND credits + $2 >= 0`

	result, err := tx.ExecContext(ctx, update, userID, delta)
	if err != nil {
		return r.handleLedgerError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM account_balances WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check account %d existence: %w", userID, err)
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientCredits
	}
	return nil
}

func (r *postgresLedgerRepository) insertTransaction(ctx context.Context, tx *sql.Tx, txn *models.CreditTransaction) error {
	insert := `
		INSERT INTO credit_transactions (id, user_id, amount, kind, reason, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.ExecContext(ctx, insert,
		txn.ID, txn.UserID, txn.Amount, txn.Kind, txn.Reason, txn.ExternalRef, txn.CreatedAt,
	)
	return r.handleLedgerError(err)
}

func (r *postgresLedgerRepository) handleLedgerError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "account_balances_credits_check":
			return ErrInsufficientCredits
		case "credit_transactions_external_ref_key":
			return fmt.Errorf("external_ref conflict: %w", err)
		}
	}
	return err
}
