package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/courtside/livescore/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticSource(snap models.Snapshot) SnapshotSource {
	return SnapshotSourceFunc(func(ctx context.Context, matchID string) (*models.Snapshot, error) {
		copied := snap
		return &copied, nil
	})
}

func liveSnapshot(scoreA int) models.Snapshot {
	return models.Snapshot{
		ID:              "m1",
		TeamA:           "Falcons",
		TeamB:           "Ravens",
		ScoreA:          scoreA,
		CurrentSet:      1,
		MaxPointsPerSet: 21,
		Status:          models.MatchStatusLive,
	}
}

func recvSnapshot(t *testing.T, sub *Subscription) models.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return models.Snapshot{}
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for subscription channel to close")
		}
	}
}

func TestSubscribeDeliversCurrentSnapshotFirst(t *testing.T) {
	hub := NewHub(staticSource(liveSnapshot(7)), testLogger())
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer hub.Unsubscribe(sub)

	first := recvSnapshot(t, sub)
	if first.ScoreA != 7 {
		t.Errorf("first snapshot ScoreA = %d, want current state 7", first.ScoreA)
	}
}

func TestPublishPreservesCommitOrder(t *testing.T) {
	hub := NewHub(staticSource(liveSnapshot(0)), testLogger())
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer hub.Unsubscribe(sub)
	recvSnapshot(t, sub) // начальный снапшот

	for score := 1; score <= 5; score++ {
		hub.Publish("m1", liveSnapshot(score))
	}
	for want := 1; want <= 5; want++ {
		snap := recvSnapshot(t, sub)
		if snap.ScoreA != want {
			t.Fatalf("delivery out of order: got ScoreA=%d, want %d", snap.ScoreA, want)
		}
	}
}

func TestColdRoomPublishDoesNotDuplicateSeed(t *testing.T) {
	hub := NewHub(staticSource(liveSnapshot(0)), testLogger())
	defer hub.Close()

	// Публикация в холодную комнату становится её начальным состоянием.
	hub.Publish("m1", liveSnapshot(1))

	sub, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer hub.Unsubscribe(sub)

	first := recvSnapshot(t, sub)
	if first.ScoreA != 1 {
		t.Fatalf("seed ScoreA = %d, want 1", first.ScoreA)
	}

	// Следующий доставленный снапшот — уже новое состояние, не повтор seed.
	hub.Publish("m1", liveSnapshot(2))
	second := recvSnapshot(t, sub)
	if second.ScoreA != 2 {
		t.Fatalf("got ScoreA=%d after seed, want 2 without a duplicated seed", second.ScoreA)
	}
}

func TestTerminalSnapshotClosesSubscription(t *testing.T) {
	hub := NewHub(staticSource(liveSnapshot(0)), testLogger())
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	recvSnapshot(t, sub)

	final := liveSnapshot(21)
	final.Status = models.MatchStatusCompleted
	hub.Publish("m1", final)

	snap := recvSnapshot(t, sub)
	if snap.Status != models.MatchStatusCompleted {
		t.Errorf("status = %q, want completed", snap.Status)
	}
	waitClosed(t, sub)
}

func TestSubscribeToCompletedMatch(t *testing.T) {
	final := liveSnapshot(21)
	final.Status = models.MatchStatusCompleted
	hub := NewHub(staticSource(final), testLogger())
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	snap := recvSnapshot(t, sub)
	if snap.Status != models.MatchStatusCompleted {
		t.Errorf("status = %q, want completed", snap.Status)
	}
	if _, ok := <-sub.Updates(); ok {
		t.Error("channel must be closed right after the final snapshot")
	}
}

func TestSubscribePropagatesSourceError(t *testing.T) {
	sourceErr := errors.New("match not found")
	hub := NewHub(SnapshotSourceFunc(func(ctx context.Context, matchID string) (*models.Snapshot, error) {
		return nil, sourceErr
	}), testLogger())
	defer hub.Close()

	if _, err := hub.Subscribe(context.Background(), "missing"); !errors.Is(err, sourceErr) {
		t.Errorf("Subscribe() error = %v, want %v", err, sourceErr)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(staticSource(liveSnapshot(0)), testLogger())
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(nil)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub(staticSource(liveSnapshot(0)), testLogger())
	defer hub.Close()

	slow, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	fast, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	recvSnapshot(t, fast)

	// Переполняем очередь медленного подписчика и добираем страйки.
	total := subscriberBuffer + maxDeliveryStrikes
	for score := 1; score <= total; score++ {
		hub.Publish("m1", liveSnapshot(score))
		recvSnapshot(t, fast)
	}

	// Медленного отключили, быстрый продолжает получать снапшоты.
	waitClosed(t, slow)
	hub.Publish("m1", liveSnapshot(total+1))
	snap := recvSnapshot(t, fast)
	if snap.ScoreA != total+1 {
		t.Errorf("fast subscriber got ScoreA=%d, want %d", snap.ScoreA, total+1)
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub(staticSource(liveSnapshot(0)), testLogger())

	sub, err := hub.Subscribe(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	hub.Close()
	waitClosed(t, sub)

	if _, err := hub.Subscribe(context.Background(), "m1"); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Subscribe() after Close = %v, want ErrHubClosed", err)
	}
	hub.Close() // повторный Close безопасен
}
