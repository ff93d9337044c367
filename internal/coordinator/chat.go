package coordinator

import (
	"sync"
	"time"
)

// chatMessage is one retained Chat broadcast, kept in process memory only,
// per the no-durable-storage non-goal. Nothing reads the retained history
// back; it is recorded and trimmed to chatHistoryLimit entries.
type chatMessage struct {
	userID uint32
	name   string
	text   string
	at     time.Time
}

const chatHistoryLimit = 50

// chatRegistry tracks recent chat activity for a session, generalized from
// the teacher's chat participant registry.
type chatRegistry struct {
	mu     sync.Mutex
	recent []chatMessage
}

func newChatRegistry() *chatRegistry {
	return &chatRegistry{}
}

func (r *chatRegistry) record(userID uint32, name, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, chatMessage{userID: userID, name: name, text: text, at: time.Now()})
	if len(r.recent) > chatHistoryLimit {
		r.recent = r.recent[len(r.recent)-chatHistoryLimit:]
	}
}
