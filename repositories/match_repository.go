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
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchVersionConflict = errors.New("match row was modified concurrently")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id string) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID string) ([]*models.Match, error)
	// UpdateScoreState — условная запись всего изменяемого состояния счёта.
	// Сравнение идёт по expectedVersion: ноль затронутых строк при существующем
	// матче означает конкурентную запись, а не отсутствие строки.
	UpdateScoreState(ctx context.Context, match *models.Match, expectedVersion int64) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(id, tournament_id, match_order, team_a, team_b,
			 score_a, score_b, sets_won_a, sets_won_b, current_set,
			 best_of, max_points_per_set, win_by, point_cap, status, winner, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`

	err := exec.QueryRowContext(ctx, query,
		match.ID,
		match.TournamentID,
		match.MatchOrder,
		match.TeamA,
		match.TeamB,
		match.ScoreA,
		match.ScoreB,
		match.SetsWonA,
		match.SetsWonB,
		match.CurrentSet,
		match.Rules.BestOf,
		match.Rules.MaxPointsPerSet,
		match.Rules.WinBy,
		match.Rules.PointCap,
		match.Status,
		match.Winner,
		match.Version,
	).Scan(&match.CreatedAt, &match.UpdatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id string) (*models.Match, error) {
	query := `
		SELECT id, tournament_id, match_order, team_a, team_b,
		       score_a, score_b, sets_won_a, sets_won_b, current_set,
		       best_of, max_points_per_set, win_by, point_cap, status, winner, version,
		       created_at, updated_at
		FROM matches
		WHERE id = $1`

	match := &models.Match{}
	var pointCap sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.TournamentID,
		&match.MatchOrder,
		&match.TeamA,
		&match.TeamB,
		&match.ScoreA,
		&match.ScoreB,
		&match.SetsWonA,
		&match.SetsWonB,
		&match.CurrentSet,
		&match.Rules.BestOf,
		&match.Rules.MaxPointsPerSet,
		&match.Rules.WinBy,
		&pointCap,
		&match.Status,
		&match.Winner,
		&match.Version,
		&match.CreatedAt,
		&match.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %s: %w", id, err)
	}
	if pointCap.Valid {
		cap := int(pointCap.Int64)
		match.Rules.PointCap = &cap
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID string) ([]*models.Match, error) {
	query := `
		SELECT id, tournament_id, match_order, team_a, team_b,
		       score_a, score_b, sets_won_a, sets_won_b, current_set,
		       best_of, max_points_per_set, win_by, point_cap, status, winner, version,
		       created_at, updated_at
		FROM matches
		WHERE tournament_id = $1
		ORDER BY match_order ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %s: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match := &models.Match{}
		var pointCap sql.NullInt64
		if scanErr := rows.Scan(
			&match.ID,
			&match.TournamentID,
			&match.MatchOrder,
			&match.TeamA,
			&match.TeamB,
			&match.ScoreA,
			&match.ScoreB,
			&match.SetsWonA,
			&match.SetsWonB,
			&match.CurrentSet,
			&match.Rules.BestOf,
			&match.Rules.MaxPointsPerSet,
			&match.Rules.WinBy,
			&pointCap,
			&match.Status,
			&match.Winner,
			&match.Version,
			&match.CreatedAt,
			&match.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		if pointCap.Valid {
			cap := int(pointCap.Int64)
			match.Rules.PointCap = &cap
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateScoreState(ctx context.Context, match *models.Match, expectedVersion int64) error {
	query := `
		UPDATE matches
		SET score_a = $1, score_b = $2, sets_won_a = $3, sets_won_b = $4,
		    current_set = $5, status = $6, winner = $7,
		    version = version + 1, updated_at = now()
		WHERE id = $8 AND version = $9`

	result, err := r.db.ExecContext(ctx, query,
		match.ScoreA,
		match.ScoreB,
		match.SetsWonA,
		match.SetsWonB,
		match.CurrentSet,
		match.Status,
		match.Winner,
		match.ID,
		expectedVersion,
	)
	if err != nil {
		return r.handleMatchError(err)
	}
	if err := checkAffectedRows(result, ErrMatchVersionConflict); err != nil {
		return err
	}
	match.Version = expectedVersion + 1
	return nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Constraint == "matches_pkey" {
		return fmt.Errorf("match id conflict: %w", err)
	}
	return err
}
