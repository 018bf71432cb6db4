package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/courtside/livescore/models"
	"github.com/google/uuid"
)

const (
	// subscriberBuffer — ёмкость очереди одного подписчика.
	subscriberBuffer = 16
	// maxDeliveryStrikes — сколько публикаций подряд подписчик может не
	// принять, прежде чем будет отключён. Медленный подписчик никогда не
	// блокирует публикующую сторону.
	maxDeliveryStrikes = 3
	publishBuffer      = 64
	publishWait        = time.Second
)

var ErrHubClosed = errors.New("hub is closed")

// SnapshotSource загружает текущее состояние матча для холодной комнаты,
// чтобы каждый подписчик сразу получал актуальный снапшот.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, matchID string) (*models.Snapshot, error)
}

type SnapshotSourceFunc func(ctx context.Context, matchID string) (*models.Snapshot, error)

func (f SnapshotSourceFunc) GetSnapshot(ctx context.Context, matchID string) (*models.Snapshot, error) {
	return f(ctx, matchID)
}

// Subscription — поток снапшотов одного матча. Канал закрывается, когда матч
// достигает терминального статуса, подписчик отключён за медлительность или
// хаб остановлен.
type Subscription struct {
	id      string
	matchID string
	ch      chan models.Snapshot
}

func (s *Subscription) Updates() <-chan models.Snapshot {
	return s.ch
}

func (s *Subscription) MatchID() string {
	return s.matchID
}

type subscriber struct {
	sub     *Subscription
	strikes int
}

// Hub раздаёт каждое зафиксированное изменение матча всем подписчикам.
// Все публикации одного матча проходят через единственную горутину комнаты,
// поэтому порядок доставки совпадает с порядком коммитов.
type Hub struct {
	source SnapshotSource
	logger *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

type room struct {
	matchID string
	publish chan models.Snapshot
	done    chan struct{}

	mu     sync.Mutex
	subs   map[string]*subscriber
	last   models.Snapshot
	closed bool
}

func NewHub(source SnapshotSource, logger *slog.Logger) *Hub {
	return &Hub{
		source: source,
		logger: logger,
		rooms:  make(map[string]*room),
	}
}

// Subscribe регистрирует подписчика на матч. Первый элемент в канале — всегда
// текущий снапшот, поэтому окна "подключился после изменения и видит старое
// состояние" не существует. Подписка на завершённый матч отдаёт финальный
// снапшот и сразу закрывается.
func (h *Hub) Subscribe(ctx context.Context, matchID string) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	rm := h.rooms[matchID]
	h.mu.Unlock()

	if rm == nil {
		snap, err := h.source.GetSnapshot(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if snap.Status.Terminal() {
			return finalSubscription(matchID, *snap), nil
		}
		rm, _ = h.openRoom(matchID, *snap)
	}

	rm.mu.Lock()
	if rm.closed {
		last := rm.last
		rm.mu.Unlock()
		return finalSubscription(matchID, last), nil
	}
	sub := &Subscription{
		id:      uuid.NewString(),
		matchID: matchID,
		ch:      make(chan models.Snapshot, subscriberBuffer),
	}
	sub.ch <- rm.last
	rm.subs[sub.id] = &subscriber{sub: sub}
	rm.mu.Unlock()

	return sub, nil
}

// Unsubscribe идемпотентен: повторный вызов и вызов для уже отключённого
// подписчика ничего не делают.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	rm := h.rooms[sub.matchID]
	h.mu.Unlock()
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if s, ok := rm.subs[sub.id]; ok {
		delete(rm.subs, sub.id)
		close(s.sub.ch)
	}
}

// Publish ставит снапшот в очередь комнаты. Вызывающая сторона (score engine)
// блокируется не дольше publishWait даже при полной очереди.
func (h *Hub) Publish(matchID string, snap models.Snapshot) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	rm := h.rooms[matchID]
	h.mu.Unlock()

	if rm == nil {
		// Терминальный снапшот в холодную комнату раздавать некому: будущие
		// подписчики получат финальное состояние из источника.
		if snap.Status.Terminal() {
			return
		}
		var created bool
		rm, created = h.openRoom(matchID, snap)
		if created {
			// Свежая комната уже несёт этот снапшот как seed; отдельная
			// рассылка продублировала бы его первому подписчику.
			return
		}
	}

	select {
	case rm.publish <- snap:
	case <-rm.done:
	case <-time.After(publishWait):
		h.logger.Error("hub publish timed out, snapshot dropped",
			slog.String("match_id", matchID),
		)
	}
}

// Close останавливает все комнаты и закрывает каналы подписчиков.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := make([]*room, 0, len(h.rooms))
	for _, rm := range h.rooms {
		rooms = append(rooms, rm)
	}
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	for _, rm := range rooms {
		close(rm.done)
	}
}

func (h *Hub) openRoom(matchID string, initial models.Snapshot) (*room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.rooms[matchID]; ok {
		return existing, false
	}
	rm := &room{
		matchID: matchID,
		publish: make(chan models.Snapshot, publishBuffer),
		done:    make(chan struct{}),
		subs:    make(map[string]*subscriber),
		last:    initial,
	}
	h.rooms[matchID] = rm
	go rm.run(h)
	return rm, true
}

func (h *Hub) removeRoom(matchID string) {
	h.mu.Lock()
	delete(h.rooms, matchID)
	h.mu.Unlock()
}

// TODO: reap rooms that have had no subscribers for a while; sequential
// tournaments can leave live-but-idle rooms behind.
func (rm *room) run(h *Hub) {
	for {
		select {
		case snap := <-rm.publish:
			terminal := rm.fanOut(h, snap)
			if terminal {
				h.removeRoom(rm.matchID)
				rm.closeSubs()
				return
			}
		case <-rm.done:
			h.removeRoom(rm.matchID)
			rm.closeSubs()
			return
		}
	}
}

func (rm *room) fanOut(h *Hub, snap models.Snapshot) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.last = snap
	for id, s := range rm.subs {
		select {
		case s.sub.ch <- snap:
			s.strikes = 0
		default:
			s.strikes++
			if s.strikes >= maxDeliveryStrikes {
				delete(rm.subs, id)
				close(s.sub.ch)
				h.logger.Warn("dropping slow subscriber",
					slog.String("match_id", rm.matchID),
					slog.String("subscriber_id", id),
				)
			}
		}
	}
	return snap.Status.Terminal()
}

func (rm *room) closeSubs() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return
	}
	rm.closed = true
	for id, s := range rm.subs {
		delete(rm.subs, id)
		close(s.sub.ch)
	}
}

// finalSubscription — одноразовая подписка для терминального матча: один
// финальный снапшот и закрытый канал, без регистрации в комнате.
func finalSubscription(matchID string, snap models.Snapshot) *Subscription {
	sub := &Subscription{
		id:      uuid.NewString(),
		matchID: matchID,
		ch:      make(chan models.Snapshot, 1),
	}
	sub.ch <- snap
	close(sub.ch)
	return sub
}
