package inbox

import (
	"sync"

	"github.com/wacrm/wacrm/internal/store"
)

// State is the in-memory inbox view: the conversation list, the active
// selection, and per-conversation message slices. All mutation goes through
// methods holding the lock; readers get copies.
//
// Message fetches carry a generation number per conversation. A response
// whose generation is no longer current is discarded, so navigating away
// while a fetch is in flight can never write stale history into the view.
type State struct {
	mu            sync.RWMutex
	conversations []store.Conversation
	activeID      string
	messages      map[string][]store.Message
	fetchGen      map[string]uint64
	filters       Filters
}

// NewState creates an empty inbox state.
func NewState() *State {
	return &State{
		messages: make(map[string][]store.Message),
		fetchGen: make(map[string]uint64),
	}
}

// SetConversations replaces the conversation list.
func (s *State) SetConversations(list []store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = list
}

// Conversations returns a copy of the raw list.
func (s *State) Conversations() []store.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// SetFilters replaces the active filter criteria.
func (s *State) SetFilters(f Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f
}

// Filters returns the active filter criteria.
func (s *State) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// Filtered returns the conversation list under the active filters.
func (s *State) Filtered() []store.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Apply(s.conversations, s.filters)
}

// SetActive selects a conversation. An empty id clears the selection.
func (s *State) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
}

// ActiveID returns the selected conversation id, or "".
func (s *State) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns the selected conversation, or nil when nothing is selected.
func (s *State) Active() *store.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.conversations {
		if s.conversations[i].ID == s.activeID {
			c := s.conversations[i]
			return &c
		}
	}
	return nil
}

// Update applies fn to the conversation with the given id, both in the list
// and implicitly in the active mirror (Active reads from the list).
func (s *State) Update(id string, fn func(*store.Conversation)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			fn(&s.conversations[i])
			return true
		}
	}
	return false
}

// Remove deletes a conversation from the list and repairs the selection:
// when the removed conversation was active, the selection moves to the first
// remaining conversation under the active filters, or clears when none match.
// It returns the removed conversation and its list index for rollback, or
// (nil, -1) when absent.
func (s *State) Remove(id string) (*store.Conversation, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, -1
	}
	removed := s.conversations[idx]
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	delete(s.messages, id)

	if s.activeID == id {
		s.activeID = ""
		remaining := Apply(s.conversations, s.filters)
		if len(remaining) > 0 {
			s.activeID = remaining[0].ID
		}
	}
	return &removed, idx
}

// Restore reinserts a conversation removed by Remove at its original index,
// so a rolled-back delete does not reorder the list.
func (s *State) Restore(c *store.Conversation, idx int) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx > len(s.conversations) {
		idx = len(s.conversations)
	}
	s.conversations = append(s.conversations, store.Conversation{})
	copy(s.conversations[idx+1:], s.conversations[idx:])
	s.conversations[idx] = *c
}

// BeginFetch bumps and returns the fetch generation for a conversation.
func (s *State) BeginFetch(conversationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchGen[conversationID]++
	return s.fetchGen[conversationID]
}

// CompleteFetch installs fetched messages if gen is still current. It
// returns false when a newer fetch has started and the response is stale.
func (s *State) CompleteFetch(conversationID string, gen uint64, msgs []store.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchGen[conversationID] != gen {
		return false
	}
	s.messages[conversationID] = msgs
	return true
}

// Messages returns a copy of the loaded messages for a conversation.
func (s *State) Messages(conversationID string) []store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out
}

// AppendMessage adds a message to a conversation's loaded slice.
func (s *State) AppendMessage(conversationID string, m store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], m)
}

// PatchMessage applies fn to the message with the given id in place. It
// returns false when the message is not loaded.
func (s *State) PatchMessage(conversationID, msgID string, fn func(*store.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].MsgID == msgID {
			fn(&msgs[i])
			return true
		}
	}
	return false
}
