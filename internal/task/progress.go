package task

import "sync"

// broadcastDepth bounds each subscriber's channel; a slow subscriber
// loses the oldest buffered snapshot rather than blocking the publisher.
const broadcastDepth = 64

// broadcaster fans a single task's snapshots out to every subscriber.
// Created lazily on first subscribe, under progressMu's double-checked
// pattern (read for existence, upgrade to a write lock to create).
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Sanitized
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Sanitized)}
}

func (b *broadcaster) subscribe() (int, <-chan Sanitized) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Sanitized, broadcastDepth)
	b.subs[id] = ch
	return id, ch
}

func (b *broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// publish sends snap to every subscriber, dropping the oldest buffered
// snapshot for any subscriber whose channel is full.
func (b *broadcaster) publish(snap Sanitized) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// broadcasterFor returns (creating if absent) the broadcaster for id.
func (m *Manager) broadcasterFor(id string) *broadcaster {
	m.progressMu.RLock()
	b, ok := m.progressTx[id]
	m.progressMu.RUnlock()
	if ok {
		return b
	}

	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	if b, ok := m.progressTx[id]; ok {
		return b
	}
	b = newBroadcaster()
	m.progressTx[id] = b
	return b
}

// emit publishes a sanitised snapshot of t to its broadcaster, if one
// has ever been created (i.e. at least one subscriber has arrived).
func (m *Manager) emit(t Task) {
	m.progressMu.RLock()
	b, ok := m.progressTx[t.ID]
	m.progressMu.RUnlock()
	if !ok {
		return
	}
	b.publish(Sanitize(t, m.fileExists(t.FilePath)))
}

// Subscribe returns the current snapshot plus a channel of subsequent
// ones. The caller must call the returned cancel function when done.
func (m *Manager) Subscribe(id, accountHash string) (Sanitized, <-chan Sanitized, func(), error) {
	t, err := m.getOwned(id, accountHash)
	if err != nil {
		return Sanitized{}, nil, nil, err
	}

	b := m.broadcasterFor(id)
	subID, ch := b.subscribe()

	m.mu.RLock()
	snap := Sanitize(*t, m.fileExists(t.FilePath))
	m.mu.RUnlock()

	return snap, ch, func() { b.unsubscribe(subID) }, nil
}
