package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtside/livescore/models"
	"github.com/courtside/livescore/repositories"
)

// scoreWriteAttempts — бюджет повторов условной записи при конфликте версий.
const scoreWriteAttempts = 3

const archiveTimeout = 10 * time.Second

// SnapshotPublisher получает полный снапшот после каждой успешной записи.
type SnapshotPublisher interface {
	Publish(matchID string, snap models.Snapshot)
}

// MatchArchiver выгружает финальный снапшот завершённого матча.
type MatchArchiver interface {
	ArchiveFinal(ctx context.Context, snap models.Snapshot) error
}

type ScoreService interface {
	ApplyDelta(ctx context.Context, matchID string, side models.Side, delta int) (*models.Snapshot, error)
	GetSnapshot(ctx context.Context, matchID string) (*models.Snapshot, error)
	CancelMatch(ctx context.Context, matchID string) (*models.Snapshot, error)
}

type scoreService struct {
	matches  repositories.MatchRepository
	hub      SnapshotPublisher
	archiver MatchArchiver
	logger   *slog.Logger
}

func NewScoreService(
	matches repositories.MatchRepository,
	hub SnapshotPublisher,
	archiver MatchArchiver,
	logger *slog.Logger,
) ScoreService {
	return &scoreService{
		matches:  matches,
		hub:      hub,
		archiver: archiver,
		logger:   logger,
	}
}

// ApplyDelta применяет один балл (или его откат) к матчу.
// Чтение, вычисление нового состояния и условная запись повторяются до
// scoreWriteAttempts раз; переходы сета и матча попадают в ту же запись,
// поэтому на один успешный вызов всегда приходится ровно одна публикация.
func (s *scoreService) ApplyDelta(ctx context.Context, matchID string, side models.Side, delta int) (*models.Snapshot, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if delta != 1 && delta != -1 {
		return nil, ErrInvalidDelta
	}

	for attempt := 1; attempt <= scoreWriteAttempts; attempt++ {
		match, err := s.loadMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if match.Finished() {
			return nil, ErrMatchFinished
		}

		next := *match
		advanceScore(&next, side, delta)

		err = s.matches.UpdateScoreState(ctx, &next, match.Version)
		if errors.Is(err, repositories.ErrMatchVersionConflict) {
			s.logger.Debug("score write conflicted, retrying",
				slog.String("match_id", matchID),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to commit score for match %s: %w", matchID, err)
		}

		snap := next.Snapshot()
		s.hub.Publish(matchID, snap)
		if next.Status == models.MatchStatusCompleted && s.archiver != nil {
			go s.archive(snap)
		}
		return &snap, nil
	}

	return nil, ErrScoreConflict
}

func (s *scoreService) GetSnapshot(ctx context.Context, matchID string) (*models.Snapshot, error) {
	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	snap := match.Snapshot()
	return &snap, nil
}

// CancelMatch переводит матч в canceled административным действием.
// Терминальный снапшот публикуется, чтобы хаб закрыл подписки.
func (s *scoreService) CancelMatch(ctx context.Context, matchID string) (*models.Snapshot, error) {
	for attempt := 1; attempt <= scoreWriteAttempts; attempt++ {
		match, err := s.loadMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if match.Finished() {
			return nil, ErrMatchFinished
		}

		next := *match
		next.Status = models.MatchStatusCanceled

		err = s.matches.UpdateScoreState(ctx, &next, match.Version)
		if errors.Is(err, repositories.ErrMatchVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to cancel match %s: %w", matchID, err)
		}

		snap := next.Snapshot()
		s.hub.Publish(matchID, snap)
		return &snap, nil
	}
	return nil, ErrScoreConflict
}

func (s *scoreService) loadMatch(ctx context.Context, matchID string) (*models.Match, error) {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	return match, nil
}

func (s *scoreService) archive(snap models.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := s.archiver.ArchiveFinal(ctx, snap); err != nil {
		s.logger.Error("failed to archive final match snapshot",
			slog.String("match_id", snap.ID),
			slog.Any("error", err),
		)
	}
}

// advanceScore вычисляет новое состояние матча после одного балла.
// Счёт не опускается ниже нуля; первый балл переводит матч в live.
func advanceScore(m *models.Match, side models.Side, delta int) {
	if m.Status == models.MatchStatusScheduled {
		m.Status = models.MatchStatusLive
	}

	if side == models.SideA {
		m.ScoreA += delta
		if m.ScoreA < 0 {
			m.ScoreA = 0
		}
	} else {
		m.ScoreB += delta
		if m.ScoreB < 0 {
			m.ScoreB = 0
		}
	}

	switch {
	case m.Rules.SetWon(m.ScoreA, m.ScoreB):
		m.SetsWonA++
		finishSet(m)
		if m.SetsWonA >= m.Rules.SetsToWin() {
			finishMatch(m, m.TeamA)
		}
	case m.Rules.SetWon(m.ScoreB, m.ScoreA):
		m.SetsWonB++
		finishSet(m)
		if m.SetsWonB >= m.Rules.SetsToWin() {
			finishMatch(m, m.TeamB)
		}
	}
}

func finishSet(m *models.Match) {
	m.ScoreA = 0
	m.ScoreB = 0
	m.CurrentSet++
}

func finishMatch(m *models.Match, winner string) {
	m.Status = models.MatchStatusCompleted
	m.Winner = &winner
}
