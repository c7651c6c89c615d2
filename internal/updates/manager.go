// Package updates holds the per-bot update queues the getUpdates long poll
// is served from. One Manager instance is shared by the ingest handlers
// (writers) and the dispatcher (reader); all state lives behind one mutex.
package updates

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/botapi"
)

const (
	// MaxQueueSize caps each bot's queue; overflow drops the oldest entries.
	MaxQueueSize = 1000

	// CleanupInterval is how long dedup keys are remembered.
	CleanupInterval = 300 * time.Second
)

// Manager owns the queues, update-id counters, dedup maps, and the
// handler-registration flags for every bot served by this process.
type Manager struct {
	mu            sync.Mutex
	queues        map[int64][]botapi.Update
	counters      map[int64]int64
	seenMessages  map[int64]map[string]time.Time
	seenCallbacks map[int64]map[string]time.Time
	registered    map[int64]bool

	// now is swapped in tests to age dedup entries.
	now func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		queues:        make(map[int64][]botapi.Update),
		counters:      make(map[int64]int64),
		seenMessages:  make(map[int64]map[string]time.Time),
		seenCallbacks: make(map[int64]map[string]time.Time),
		registered:    make(map[int64]bool),
		now:           time.Now,
	}
}

// Add assigns the next update_id for the bot and appends the update to its
// queue, dropping the oldest entries past MaxQueueSize. The counter is seeded
// at epoch milliseconds on the bot's first update so ids survive restarts
// without ever moving backwards. Returns the assigned id.
func (m *Manager) Add(botID int64, upd botapi.Update) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.counters[botID]; !ok {
		m.counters[botID] = m.now().Unix() * 1000
	}
	m.counters[botID]++
	upd.UpdateID = m.counters[botID]

	q := append(m.queues[botID], upd)
	if len(q) > MaxQueueSize {
		q = q[len(q)-MaxQueueSize:]
	}
	m.queues[botID] = q

	updatesEnqueued.Inc()
	queueDepth.Set(float64(m.totalDepthLocked()))

	log.Debug().
		Int64("botId", botID).
		Int64("updateId", upd.UpdateID).
		Msg("update enqueued")
	return upd.UpdateID
}

// Get implements the Bot API acknowledgment contract: a positive offset first
// discards every queued update with a smaller id, then up to limit of the
// remaining updates are returned in ascending id order.
func (m *Manager) Get(botID int64, offset int64, limit int) []botapi.Update {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[botID]
	if offset > 0 {
		kept := q[:0]
		for _, u := range q {
			if u.UpdateID >= offset {
				kept = append(kept, u)
			}
		}
		if removed := len(q) - len(kept); removed > 0 {
			log.Debug().
				Int64("botId", botID).
				Int("removed", removed).
				Msg("acknowledged updates dropped")
		}
		q = kept
		m.queues[botID] = q
		queueDepth.Set(float64(m.totalDepthLocked()))
	}

	result := make([]botapi.Update, 0, len(q))
	for _, u := range q {
		if u.UpdateID >= offset {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdateID < result[j].UpdateID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// MarkMessage records a message dedup key. It returns false when the key was
// already recorded within the cleanup window, meaning the event must be
// dropped. Stale keys are pruned on every call.
func (m *Manager) MarkMessage(botID int64, key string) bool {
	return m.mark(m.seenMessages, botID, key)
}

// MarkCallback is MarkMessage for callback dedup keys.
func (m *Manager) MarkCallback(botID int64, key string) bool {
	return m.mark(m.seenCallbacks, botID, key)
}

func (m *Manager) mark(seen map[int64]map[string]time.Time, botID int64, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := seen[botID]
	if keys == nil {
		keys = make(map[string]time.Time)
		seen[botID] = keys
	}

	now := m.now()
	for k, at := range keys {
		if now.Sub(at) >= CleanupInterval {
			delete(keys, k)
		}
	}

	if _, dup := keys[key]; dup {
		return false
	}
	keys[key] = now
	return true
}

// MarkHandlersRegistered flags the bot's event subscription as installed.
// It returns true exactly once per bot; later calls see the flag and return
// false, which is what guards against double subscription.
func (m *Manager) MarkHandlersRegistered(botID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered[botID] {
		return false
	}
	m.registered[botID] = true
	return true
}

// HandlersRegistered reports whether the bot's subscription is installed.
func (m *Manager) HandlersRegistered(botID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered[botID]
}

func (m *Manager) totalDepthLocked() int {
	total := 0
	for _, q := range m.queues {
		total += len(q)
	}
	return total
}
