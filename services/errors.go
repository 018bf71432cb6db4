package services

import "errors"

// Общие ошибки сервисного слоя, маппятся на HTTP в handlers.
var (
	// Матчи и счёт
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchFinished = errors.New("match is already completed or canceled")
	ErrInvalidSide   = errors.New("side must be A or B")
	ErrInvalidDelta  = errors.New("delta must be +1 or -1")
	// Бюджет повторов optimistic concurrency исчерпан: вызывающий может
	// повторить запрос, состояние матча не повреждено.
	ErrScoreConflict = errors.New("score update conflicted with concurrent writes, try again")

	// Леджер
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrAccountNotFound     = errors.New("ledger account not found")
	ErrInsufficientFunds   = errors.New("insufficient credits")
	ErrExternalRefRequired = errors.New("external payment reference is required")
	ErrAccountFrozen       = errors.New("account is frozen pending reconciliation")
	ErrLedgerCorrupted     = errors.New("ledger state is inconsistent")

	// Сага создания турнира
	ErrTournamentCreateFailed = errors.New("tournament creation failed, fee refunded")
)
