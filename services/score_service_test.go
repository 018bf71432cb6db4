package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/courtside/livescore/models"
	"github.com/courtside/livescore/repositories"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMatchRepo повторяет семантику условной записи: запись проходит только
// при совпадении версии. Поле conflicts позволяет инсценировать конкурентов.
type fakeMatchRepo struct {
	mu        sync.Mutex
	matches   map[string]*models.Match
	conflicts int
	writes    int
}

func newFakeMatchRepo(matches ...*models.Match) *fakeMatchRepo {
	r := &fakeMatchRepo{matches: make(map[string]*models.Match)}
	for _, m := range matches {
		copied := *m
		r.matches[m.ID] = &copied
	}
	return r
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *match
	r.matches[match.ID] = &copied
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id string) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID string) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.TournamentID == tournamentID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) UpdateScoreState(ctx context.Context, match *models.Match, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return repositories.ErrMatchVersionConflict
	}
	stored, ok := r.matches[match.ID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if stored.Version != expectedVersion {
		return repositories.ErrMatchVersionConflict
	}
	copied := *match
	copied.Version = expectedVersion + 1
	r.matches[match.ID] = &copied
	match.Version = expectedVersion + 1
	r.writes++
	return nil
}

type fakePublisher struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (p *fakePublisher) Publish(matchID string, snap models.Snapshot) {
	p.mu.Lock()
	p.snaps = append(p.snaps, snap)
	p.mu.Unlock()
}

func (p *fakePublisher) published() []models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Snapshot, len(p.snaps))
	copy(out, p.snaps)
	return out
}

type fakeArchiver struct {
	archived chan models.Snapshot
}

func (a *fakeArchiver) ArchiveFinal(ctx context.Context, snap models.Snapshot) error {
	a.archived <- snap
	return nil
}

func liveMatch() *models.Match {
	return &models.Match{
		ID:         "m1",
		TeamA:      "Falcons",
		TeamB:      "Ravens",
		CurrentSet: 1,
		Rules:      models.SetRules{BestOf: 3, MaxPointsPerSet: 21, WinBy: 2},
		Status:     models.MatchStatusLive,
	}
}

func TestApplyDeltaValidation(t *testing.T) {
	repo := newFakeMatchRepo(liveMatch())
	svc := NewScoreService(repo, &fakePublisher{}, nil, testLogger())

	if _, err := svc.ApplyDelta(context.Background(), "m1", models.Side("C"), 1); !errors.Is(err, ErrInvalidSide) {
		t.Errorf("invalid side: got %v, want ErrInvalidSide", err)
	}
	if _, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 2); !errors.Is(err, ErrInvalidDelta) {
		t.Errorf("delta=2: got %v, want ErrInvalidDelta", err)
	}
	if _, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 0); !errors.Is(err, ErrInvalidDelta) {
		t.Errorf("delta=0: got %v, want ErrInvalidDelta", err)
	}
	if _, err := svc.ApplyDelta(context.Background(), "missing", models.SideA, 1); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("unknown match: got %v, want ErrMatchNotFound", err)
	}
}

func TestApplyDeltaFirstPointStartsMatch(t *testing.T) {
	m := liveMatch()
	m.Status = models.MatchStatusScheduled
	repo := newFakeMatchRepo(m)
	pub := &fakePublisher{}
	svc := NewScoreService(repo, pub, nil, testLogger())

	snap, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 1)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if snap.Status != models.MatchStatusLive {
		t.Errorf("status = %q, want live", snap.Status)
	}
	if snap.ScoreA != 1 || snap.ScoreB != 0 {
		t.Errorf("score = %d-%d, want 1-0", snap.ScoreA, snap.ScoreB)
	}
	if got := len(pub.published()); got != 1 {
		t.Errorf("published %d snapshots, want 1", got)
	}
}

func TestApplyDeltaNeverBelowZero(t *testing.T) {
	repo := newFakeMatchRepo(liveMatch())
	svc := NewScoreService(repo, &fakePublisher{}, nil, testLogger())

	snap, err := svc.ApplyDelta(context.Background(), "m1", models.SideB, -1)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if snap.ScoreB != 0 {
		t.Errorf("ScoreB = %d, want clamped to 0", snap.ScoreB)
	}
}

func TestApplyDeltaCompletesSet(t *testing.T) {
	m := liveMatch()
	m.ScoreA = 20
	m.ScoreB = 15
	repo := newFakeMatchRepo(m)
	pub := &fakePublisher{}
	svc := NewScoreService(repo, pub, nil, testLogger())

	snap, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 1)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}

	// Переход сета фиксируется той же записью, что и сам балл:
	// одна публикация, счёт уже обнулён, номер сета сдвинут.
	if snap.SetsWonA != 1 {
		t.Errorf("SetsWonA = %d, want 1", snap.SetsWonA)
	}
	if snap.CurrentSet != 2 {
		t.Errorf("CurrentSet = %d, want 2", snap.CurrentSet)
	}
	if snap.ScoreA != 0 || snap.ScoreB != 0 {
		t.Errorf("score = %d-%d, want 0-0 after set", snap.ScoreA, snap.ScoreB)
	}
	if got := len(pub.published()); got != 1 {
		t.Errorf("published %d snapshots, want exactly 1", got)
	}
}

func TestApplyDeltaDeuceRequiresWinBy(t *testing.T) {
	m := liveMatch()
	m.ScoreA = 20
	m.ScoreB = 20
	repo := newFakeMatchRepo(m)
	svc := NewScoreService(repo, &fakePublisher{}, nil, testLogger())

	snap, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 1)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if snap.SetsWonA != 0 || snap.ScoreA != 21 {
		t.Errorf("21-20 must not close the set: %+v", snap)
	}

	snap, err = svc.ApplyDelta(context.Background(), "m1", models.SideA, 1)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if snap.SetsWonA != 1 {
		t.Errorf("22-20 must close the set, got %+v", snap)
	}
}

func TestApplyDeltaCompletesMatch(t *testing.T) {
	m := liveMatch()
	m.SetsWonA = 1
	m.ScoreA = 20
	m.ScoreB = 10
	repo := newFakeMatchRepo(m)
	pub := &fakePublisher{}
	archiver := &fakeArchiver{archived: make(chan models.Snapshot, 1)}
	svc := NewScoreService(repo, pub, archiver, testLogger())

	snap, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 1)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if snap.Status != models.MatchStatusCompleted {
		t.Fatalf("status = %q, want completed", snap.Status)
	}
	if snap.Winner == nil || *snap.Winner != "Falcons" {
		t.Errorf("winner = %v, want Falcons", snap.Winner)
	}

	select {
	case archived := <-archiver.archived:
		if archived.ID != "m1" || archived.Status != models.MatchStatusCompleted {
			t.Errorf("archived wrong snapshot: %+v", archived)
		}
	case <-time.After(time.Second):
		t.Error("final snapshot was not archived")
	}

	// Матч завершён, дальнейшие баллы отклоняются.
	if _, err := svc.ApplyDelta(context.Background(), "m1", models.SideB, 1); !errors.Is(err, ErrMatchFinished) {
		t.Errorf("point after completion: got %v, want ErrMatchFinished", err)
	}
}

func TestApplyDeltaRetriesOnVersionConflict(t *testing.T) {
	repo := newFakeMatchRepo(liveMatch())
	repo.conflicts = 2
	pub := &fakePublisher{}
	svc := NewScoreService(repo, pub, nil, testLogger())

	snap, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 1)
	if err != nil {
		t.Fatalf("ApplyDelta() after conflicts error = %v", err)
	}
	if snap.ScoreA != 1 {
		t.Errorf("ScoreA = %d, want 1", snap.ScoreA)
	}
	if got := len(pub.published()); got != 1 {
		t.Errorf("published %d snapshots, want 1 per committed write", got)
	}
}

func TestApplyDeltaGivesUpAfterRetryBudget(t *testing.T) {
	repo := newFakeMatchRepo(liveMatch())
	repo.conflicts = scoreWriteAttempts
	svc := NewScoreService(repo, &fakePublisher{}, nil, testLogger())

	if _, err := svc.ApplyDelta(context.Background(), "m1", models.SideA, 1); !errors.Is(err, ErrScoreConflict) {
		t.Errorf("got %v, want ErrScoreConflict", err)
	}
	if repo.writes != 0 {
		t.Errorf("no write should have committed, got %d", repo.writes)
	}
}

func TestCancelMatch(t *testing.T) {
	repo := newFakeMatchRepo(liveMatch())
	pub := &fakePublisher{}
	svc := NewScoreService(repo, pub, nil, testLogger())

	snap, err := svc.CancelMatch(context.Background(), "m1")
	if err != nil {
		t.Fatalf("CancelMatch() error = %v", err)
	}
	if snap.Status != models.MatchStatusCanceled {
		t.Errorf("status = %q, want canceled", snap.Status)
	}
	if got := len(pub.published()); got != 1 {
		t.Errorf("terminal snapshot must be published, got %d", got)
	}

	if _, err := svc.CancelMatch(context.Background(), "m1"); !errors.Is(err, ErrMatchFinished) {
		t.Errorf("second cancel: got %v, want ErrMatchFinished", err)
	}
}
