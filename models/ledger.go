package models

import "time"

type TransactionKind string

const (
	KindPurchase      TransactionKind = "purchase"
	KindDeduction     TransactionKind = "deduction"
	KindRefund        TransactionKind = "refund"
	KindAdminOverride TransactionKind = "admin_override"
)

// AccountBalance — единственный скаляр кредитов на пользователя.
// Пишется только через атомарные операции LedgerRepository.
type AccountBalance struct {
	UserID    int       `json:"user_id"`
	Credits   int64     `json:"credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditTransaction — append-only запись о каждом изменении баланса.
// ExternalRef уникален, когда задан: это ключ идемпотентности платёжного шлюза.
type CreditTransaction struct {
	ID          string          `json:"id"`
	UserID      int             `json:"user_id"`
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Reason      string          `json:"reason"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
