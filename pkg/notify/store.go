package notify

import (
	"time"

	"github.com/3leaps/gobeacon/pkg/remote"
)

// Store is the deduplicated, order-preserving notification set.
//
// Records are keyed by id; a merge never creates a duplicate and never
// touches the read state of a record that is already present. The unread
// counter is recomputed from the records after every local mutation, but
// the server's counter is authoritative and may override it via SetUnread.
//
// Store is not safe for concurrent use on its own; the engine serializes
// all access.
type Store struct {
	records []*remote.Notification // first-seen order
	index   map[string]*remote.Notification
	unread  int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]*remote.Notification)}
}

// Merge appends the records from batch whose ids are not yet present,
// preserving batch order, and returns copies of the newly added records.
// Records without an id are dropped.
func (s *Store) Merge(batch []remote.Notification) []remote.Notification {
	var fresh []remote.Notification
	for _, n := range batch {
		if n.ID == "" {
			continue
		}
		if _, ok := s.index[n.ID]; ok {
			continue
		}
		rec := n
		s.records = append(s.records, &rec)
		s.index[rec.ID] = &rec
		fresh = append(fresh, rec)
	}
	if len(fresh) > 0 {
		s.recount()
	}
	return fresh
}

// SetUnread overrides the unread counter with the server's value,
// clamped to never go negative.
func (s *Store) SetUnread(n int) {
	if n < 0 {
		n = 0
	}
	s.unread = n
}

// Unread returns the current unread counter.
func (s *Store) Unread() int {
	return s.unread
}

// MarkRead marks one record read at the given time. Returns false for
// unknown ids. Marking an already-read record is a no-op.
func (s *Store) MarkRead(id string, at time.Time) bool {
	rec, ok := s.index[id]
	if !ok {
		return false
	}
	if !rec.IsRead {
		rec.IsRead = true
		t := at
		rec.ReadAt = &t
		s.recount()
	}
	return true
}

// MarkManyRead marks a batch of records read. Unknown ids are skipped.
func (s *Store) MarkManyRead(ids []string, at time.Time) {
	for _, id := range ids {
		s.MarkRead(id, at)
	}
}

// MarkAllRead marks every record read.
func (s *Store) MarkAllRead(at time.Time) {
	for _, rec := range s.records {
		if !rec.IsRead {
			rec.IsRead = true
			t := at
			rec.ReadAt = &t
		}
	}
	s.recount()
}

// PruneRead removes read records created before cutoff and returns how many
// were dropped. Unread records are retained regardless of age.
func (s *Store) PruneRead(cutoff time.Time) int {
	kept := s.records[:0]
	dropped := 0
	for _, rec := range s.records {
		if rec.IsRead && rec.CreatedAt.Before(cutoff) {
			delete(s.index, rec.ID)
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	if dropped > 0 {
		s.recount()
	}
	return dropped
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.records)
}

// All returns copies of every record in first-seen order.
func (s *Store) All() []remote.Notification {
	out := make([]remote.Notification, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// UnreadOnly returns copies of the unread records in first-seen order.
func (s *Store) UnreadOnly() []remote.Notification {
	var out []remote.Notification
	for _, rec := range s.records {
		if !rec.IsRead {
			out = append(out, *rec)
		}
	}
	return out
}

// PersistentUnread returns copies of the unread records flagged persistent.
func (s *Store) PersistentUnread() []remote.Notification {
	var out []remote.Notification
	for _, rec := range s.records {
		if !rec.IsRead && rec.IsPersistent {
			out = append(out, *rec)
		}
	}
	return out
}

// recount rederives the unread counter from the records.
func (s *Store) recount() {
	n := 0
	for _, rec := range s.records {
		if !rec.IsRead {
			n++
		}
	}
	s.unread = n
}
