package models

import (
	"errors"
	"time"
)

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusLive      MatchStatus = "live"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCanceled  MatchStatus = "canceled"
)

// Terminal сообщает, что матч больше не принимает изменения счёта.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCanceled
}

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

var (
	ErrInvalidBestOf    = errors.New("best_of must be a positive odd number")
	ErrInvalidMaxPoints = errors.New("max_points_per_set must be positive")
	ErrInvalidWinBy     = errors.New("win_by must be at least 1")
	ErrInvalidPointCap  = errors.New("point_cap must be greater than max_points_per_set")
)

// SetRules — правила завершения сета и матча. Задаются при создании матча,
// разные форматы используют разные комбинации (win-by-two, жёсткий потолок и т.д.).
type SetRules struct {
	BestOf          int  `json:"best_of"`
	MaxPointsPerSet int  `json:"max_points_per_set"`
	WinBy           int  `json:"win_by"`
	PointCap        *int `json:"point_cap,omitempty"`
}

// SetsToWin возвращает число сетов, необходимое для победы в матче.
func (r SetRules) SetsToWin() int {
	return r.BestOf/2 + 1
}

func (r SetRules) Validate() error {
	if r.BestOf <= 0 || r.BestOf%2 == 0 {
		return ErrInvalidBestOf
	}
	if r.MaxPointsPerSet <= 0 {
		return ErrInvalidMaxPoints
	}
	if r.WinBy < 1 {
		return ErrInvalidWinBy
	}
	if r.PointCap != nil && *r.PointCap <= r.MaxPointsPerSet {
		return ErrInvalidPointCap
	}
	return nil
}

// SetWon сообщает, выиграна ли партия стороной со счётом score против opponent.
func (r SetRules) SetWon(score, opponent int) bool {
	if r.PointCap != nil && score >= *r.PointCap {
		return true
	}
	return score >= r.MaxPointsPerSet && score-opponent >= r.WinBy
}

// Match — авторитетная строка матча. Поле Version используется для
// optimistic concurrency: каждая успешная запись инкрементирует его.
type Match struct {
	ID           string      `json:"id"`
	TournamentID string      `json:"tournament_id"`
	MatchOrder   int         `json:"match_order"`
	TeamA        string      `json:"team_a"`
	TeamB        string      `json:"team_b"`
	ScoreA       int         `json:"score_a"`
	ScoreB       int         `json:"score_b"`
	SetsWonA     int         `json:"sets_won_a"`
	SetsWonB     int         `json:"sets_won_b"`
	CurrentSet   int         `json:"current_set"`
	Rules        SetRules    `json:"rules"`
	Status       MatchStatus `json:"status"`
	Winner       *string     `json:"winner,omitempty"`
	Version      int64       `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (m *Match) Finished() bool {
	return m.Status.Terminal()
}

// Snapshot — полное состояние матча, достаточное для отрисовки без истории.
// Формат полей стабилен: его читают все подключённые клиенты.
type Snapshot struct {
	ID              string      `json:"id"`
	TeamA           string      `json:"team_a"`
	TeamB           string      `json:"team_b"`
	ScoreA          int         `json:"score_a"`
	ScoreB          int         `json:"score_b"`
	SetsWonA        int         `json:"sets_won_a"`
	SetsWonB        int         `json:"sets_won_b"`
	CurrentSet      int         `json:"current_set"`
	MaxPointsPerSet int         `json:"max_points_per_set"`
	Status          MatchStatus `json:"status"`
	Winner          *string     `json:"winner,omitempty"`
}

func (m *Match) Snapshot() Snapshot {
	return Snapshot{
		ID:              m.ID,
		TeamA:           m.TeamA,
		TeamB:           m.TeamB,
		ScoreA:          m.ScoreA,
		ScoreB:          m.ScoreB,
		SetsWonA:        m.SetsWonA,
		SetsWonB:        m.SetsWonB,
		CurrentSet:      m.CurrentSet,
		MaxPointsPerSet: m.Rules.MaxPointsPerSet,
		Status:          m.Status,
		Winner:          m.Winner,
	}
}
