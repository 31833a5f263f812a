package togglestate

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/dnrc/internal/dnr/common/clock"
	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/repos/boltdb"
)

var (
	bucketToggle = []byte("toggle")

	keyState   = []byte("state")
	keyChanged = []byte("changed")
)

// Store persists the toggle in bbolt and fans changes out to subscribers.
type Store struct {
	db    *bbolt.DB
	clock clock.Clock

	mu     sync.Mutex
	subs   map[int]chan domain.ToggleChange
	nextID int
}

// New wraps an open bbolt handle and ensures the toggle bucket exists.
func New(db *bbolt.DB, clk clock.Clock) (*Store, error) {
	if err := boltdb.EnsureBuckets(db, bucketToggle); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{db: db, clock: clk, subs: make(map[int]chan domain.ToggleChange)}, nil
}

// Get returns the persisted state and when it last changed. An unset toggle
// reads as off with a zero time.
func (s *Store) Get(ctx context.Context) (domain.ToggleChange, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToggleChange{}, err
	}
	var out domain.ToggleChange
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketToggle)
		if v := b.Get(keyState); len(v) == 1 {
			out.State = domain.ToggleState(v[0] == 1)
		}
		if v := b.Get(keyChanged); len(v) == 8 {
			out.ChangedAt = time.Unix(0, int64(binary.BigEndian.Uint64(v)))
		}
		return nil
	})
	return out, err
}

// Set persists state. Subscribers are notified only when the value changes;
// the returned bool reports whether it did.
func (s *Store) Set(ctx context.Context, state domain.ToggleState) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := s.clock.Now()
	var changed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketToggle)
		v := b.Get(keyState)
		prev := len(v) == 1 && v[0] == 1
		changed = len(v) != 1 || prev != bool(state)
		if !changed {
			return nil
		}
		sv := byte(0)
		if state {
			sv = 1
		}
		tbuf := make([]byte, 8)
		binary.BigEndian.PutUint64(tbuf, uint64(now.UnixNano()))
		if err := b.Put(keyState, []byte{sv}); err != nil {
			return err
		}
		return b.Put(keyChanged, tbuf)
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.publish(domain.ToggleChange{State: state, ChangedAt: now})
	}
	return changed, nil
}

// Subscribe returns a channel of toggle changes and a cancel func that
// closes it. Each channel holds at most one pending change: a newer change
// replaces an unread older one, so slow readers only ever see the latest.
func (s *Store) Subscribe() (<-chan domain.ToggleChange, func()) {
	ch := make(chan domain.ToggleChange, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(c domain.ToggleChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			// drop the stale pending change, then deliver the newer one
			select {
			case <-ch:
			default:
			}
			ch <- c
		}
	}
}
