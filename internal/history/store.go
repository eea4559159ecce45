package history

import (
	"sync"
	"time"

	"ruangkelas/pkg/types"
)

// Store keeps room chat and material discussion entries in memory.
// FUNCTIONAL DISCOVERY: Each topic kind is its own collection with its own
// monotonic id sequence; entries are never edited or removed
type Store struct {
	mu          sync.RWMutex
	collections map[types.TopicKind]*collection
	now         func() time.Time
}

type collection struct {
	nextID  int64
	entries []types.DiscussionEntry
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		collections: map[types.TopicKind]*collection{
			types.TopicRoom:     {nextID: 1},
			types.TopicMaterial: {nextID: 1},
		},
		now: time.Now,
	}
}

// Append assigns the next id of the entry's collection, stamps CreatedAt when
// unset and stores the entry. The stored copy is returned.
func (s *Store) Append(entry types.DiscussionEntry) (types.DiscussionEntry, error) {
	if !entry.Topic.Valid() {
		return types.DiscussionEntry{}, types.ErrInvalidTopic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[entry.Topic.Kind]
	entry.ID = c.nextID
	c.nextID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	c.entries = append(c.entries, entry)
	return entry, nil
}

// Recent returns at most limit entries of the topic, oldest first.
// The result is always a suffix of the topic's full history.
func (s *Store) Recent(topic types.TopicKey, limit int) []types.DiscussionEntry {
	if limit <= 0 || !topic.Valid() {
		return []types.DiscussionEntry{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.collections[topic.Kind].entries

	// Walk backwards so large collections stop as soon as limit entries are found
	matched := make([]types.DiscussionEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(matched) < limit; i-- {
		if entries[i].Topic == topic {
			matched = append(matched, entries[i])
		}
	}

	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched
}

// Len returns the number of stored entries of one kind
func (s *Store) Len(kind types.TopicKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[kind]
	if !ok {
		return 0
	}
	return len(c.entries)
}
