package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/matesrace/matesrace/internal/metrics"
)

// Message types pushed to clients.
const (
	TypeParticipantJoined  = "participant_joined"
	TypeLeaderboardUpdated = "leaderboard_updated"
	TypeRaceFinished       = "race_finished"
)

// Message is the JSON envelope written to the event stream.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// RacePayload identifies the race a message is about.
type RacePayload struct {
	RaceID   int64  `json:"raceId"`
	RaceName string `json:"raceName"`
}

// ParticipantPayload announces a rider joining a race.
type ParticipantPayload struct {
	RacePayload
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}

const clientBuffer = 10

// Subscription is one open stream of one user. A user may hold several,
// e.g. one per browser tab.
type Subscription struct {
	ID     uuid.UUID
	UserID int64
	C      <-chan []byte
}

// Broker fans messages out to every open stream of a user.
type Broker struct {
	mu      sync.RWMutex
	clients map[int64]map[uuid.UUID]chan []byte
	closed  bool
}

func NewBroker() *Broker {
	return &Broker{
		clients: make(map[int64]map[uuid.UUID]chan []byte),
	}
}

// Subscribe opens a new stream for userID. The returned channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe(userID int64) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, clientBuffer)
	id := uuid.New()
	if b.closed {
		close(ch)
		return &Subscription{ID: id, UserID: userID, C: ch}
	}

	conns, ok := b.clients[userID]
	if !ok {
		conns = make(map[uuid.UUID]chan []byte)
		b.clients[userID] = conns
	}
	conns[id] = ch
	metrics.RealtimeClients.Inc()
	log.Printf("INFO: SSE client %s connected for user %d (%d open)", id, userID, len(conns))

	return &Subscription{ID: id, UserID: userID, C: ch}
}

// Unsubscribe closes one stream. Unknown or already closed streams are ignored.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns, ok := b.clients[sub.UserID]
	if !ok {
		return
	}
	ch, ok := conns[sub.ID]
	if !ok {
		return
	}
	delete(conns, sub.ID)
	if len(conns) == 0 {
		delete(b.clients, sub.UserID)
	}
	close(ch)
	metrics.RealtimeClients.Dec()
	log.Printf("INFO: SSE client %s disconnected for user %d", sub.ID, sub.UserID)
}

// Connections returns how many streams userID has open.
func (b *Broker) Connections(userID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[userID])
}

// NotifyUser sends message to every stream of userID. Sends never block: a
// stream whose buffer is full misses the message.
func (b *Broker) NotifyUser(userID int64, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("ERROR: could not marshal SSE message for user %d: %v", userID, err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	b.sendLocked(userID, data)
}

// NotifyUsers sends message to each distinct user in userIDs.
func (b *Broker) NotifyUsers(userIDs []int64, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("ERROR: could not marshal SSE message %s: %v", message.Type, err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		b.sendLocked(id, data)
	}
}

func (b *Broker) sendLocked(userID int64, data []byte) {
	for id, ch := range b.clients[userID] {
		select {
		case ch <- data:
		default:
			metrics.RealtimeDropped.Inc()
			log.Printf("WARN: SSE channel %s for user %d is full. Dropping message.", id, userID)
		}
	}
}

// Close ends every open stream; later subscriptions are closed immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for userID, conns := range b.clients {
		for _, ch := range conns {
			close(ch)
			metrics.RealtimeClients.Dec()
		}
		delete(b.clients, userID)
	}
}
