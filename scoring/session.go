// Package scoring содержит клиентскую часть ведения счёта: ограниченную
// историю локально внесённых баллов и undo поверх неё.
package scoring

import (
	"context"
	"errors"
	"sync"

	"github.com/courtside/livescore/models"
)

const DefaultHistoryLimit = 20

var ErrNothingToUndo = errors.New("no local entries to undo")

// DeltaApplier — путь, которым сессия отправляет баллы; и ввод, и undo идут
// через один и тот же applyDelta с той же валидацией и обработкой конфликтов.
type DeltaApplier interface {
	ApplyDelta(ctx context.Context, matchID string, side models.Side, delta int) (*models.Snapshot, error)
}

type entry struct {
	side  models.Side
	delta int
	// observed — снапшот, который сессия видела непосредственно перед
	// отправкой балла. Хранится для диагностики, не для отката состояния.
	observed *models.Snapshot
}

// Session — история последних локальных баллов одного скорера.
//
// Undo намеренно выполняется как обратная дельта против текущего состояния,
// а не как возврат сохранённого снапшота: если между вводом и undo пришло
// изменение с другого устройства, оно не будет затёрто. Итоговый счёт при
// этом может отличаться от наивного "вернуть как было" — это осознанная
// цена за сохранность конкурентных правок.
type Session struct {
	matchID string
	applier DeltaApplier
	limit   int

	mu       sync.Mutex
	history  []entry
	lastSeen *models.Snapshot
}

func NewSession(matchID string, applier DeltaApplier, limit int) *Session {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Session{
		matchID: matchID,
		applier: applier,
		limit:   limit,
	}
}

// Record отправляет один балл и запоминает его в истории undo.
func (s *Session) Record(ctx context.Context, side models.Side, delta int) (*models.Snapshot, error) {
	s.mu.Lock()
	observed := s.lastSeen
	s.mu.Unlock()

	snap, err := s.applier.ApplyDelta(ctx, s.matchID, side, delta)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.history = append(s.history, entry{side: side, delta: delta, observed: observed})
	if len(s.history) > s.limit {
		s.history = s.history[len(s.history)-s.limit:]
	}
	s.mu.Unlock()

	s.Observe(*snap)
	return snap, nil
}

// Undo снимает последнюю локальную запись и отправляет обратную дельту.
// Запись снимается со стека независимо от исхода: повторный Undo не должен
// дублировать коррекцию, если сервер уже принял её, а мы не дождались ответа.
func (s *Session) Undo(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	if len(s.history) == 0 {
		s.mu.Unlock()
		return nil, ErrNothingToUndo
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.mu.Unlock()

	snap, err := s.applier.ApplyDelta(ctx, s.matchID, last.side, -last.delta)
	if err != nil {
		return nil, err
	}

	s.Observe(*snap)
	return snap, nil
}

// Observe принимает авторитетный снапшот (свой ответ или удалённое изменение
// из хаба). Завершение сета или матча делает накопленные дельты
// бессмысленными — история очищается.
func (s *Session) Observe(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSeen != nil && (snap.CurrentSet != s.lastSeen.CurrentSet || snap.Status.Terminal()) {
		s.history = nil
	}
	if s.lastSeen == nil && snap.Status.Terminal() {
		s.history = nil
	}
	copied := snap
	s.lastSeen = &copied
}

// Reconnected сбрасывает историю: после разрыва соединения сессия не может
// утверждать, что её записи всё ещё последние.
func (s *Session) Reconnected() {
	s.mu.Lock()
	s.history = nil
	s.lastSeen = nil
	s.mu.Unlock()
}

func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
