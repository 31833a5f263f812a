package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/repos/boltdb"
	"github.com/haukened/dnrc/internal/dnr/services/installer"
)

var (
	bucketRules = []byte("rules")
	bucketMeta  = []byte("rules_meta")

	keyGeneration = []byte("generation")
	keyUpdated    = []byte("updated")
)

// Stats captures counts and metadata of the installed rule table.
type Stats struct {
	Rules       uint64
	Generation  uint64 // incremented on every successful write
	UpdatedUnix int64
}

// Engine is a bbolt-backed rule table. Every UpdateRules call is one bbolt
// transaction, so a rejected call leaves the table untouched.
type Engine struct {
	db       *bbolt.DB
	maxRules int
	now      func() time.Time
}

// New wraps an open bbolt handle and ensures the rule buckets exist.
// maxRules <= 0 disables the quota.
func New(db *bbolt.DB, maxRules int) (*Engine, error) {
	if err := boltdb.EnsureBuckets(db, bucketRules, bucketMeta); err != nil {
		return nil, err
	}
	return &Engine{db: db, maxRules: maxRules, now: time.Now}, nil
}

// UpdateRules removes removeIDs, then adds add, atomically. Unknown remove
// ids are ignored. It fails with domain.ErrInvalidRule for malformed rules
// or an add that collides with an id that stays installed, and with
// domain.ErrQuotaExceeded when the result would exceed the quota.
func (e *Engine) UpdateRules(ctx context.Context, add []domain.CompiledRule, removeIDs []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateBatch(add); err != nil {
		return err
	}
	return e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRules)
		for _, id := range removeIDs {
			if err := b.Delete(idKey(id)); err != nil {
				return err
			}
		}
		for _, r := range add {
			k := idKey(r.ID)
			if b.Get(k) != nil {
				return fmt.Errorf("%w: rule id %d is already installed", domain.ErrInvalidRule, r.ID)
			}
			v, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode rule %d: %w", r.ID, err)
			}
			if err := b.Put(k, v); err != nil {
				return err
			}
		}
		if n := countKeys(b); e.maxRules > 0 && n > e.maxRules {
			return fmt.Errorf("%w: %d rules exceeds limit %d", domain.ErrQuotaExceeded, n, e.maxRules)
		}
		return bumpGeneration(tx.Bucket(bucketMeta), e.now().Unix())
	})
}

// Rules returns every installed rule ordered by id.
func (e *Engine) Rules(ctx context.Context) ([]domain.CompiledRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.CompiledRule, 0)
	err := e.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRules).ForEach(func(k, v []byte) error {
			var r domain.CompiledRule
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode rule %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Generation returns the write generation; it changes whenever the table does.
func (e *Engine) Generation() uint64 {
	return e.Stats().Generation
}

// Stats reads counts and metadata in a read-only transaction.
func (e *Engine) Stats() Stats {
	st := Stats{}
	_ = e.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketRules); b != nil {
			st.Rules = uint64(countKeys(b))
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyGeneration); len(v) == 8 {
				st.Generation = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

// countKeys counts keys through a cursor so uncommitted writes in the
// current transaction are included.
func countKeys(b *bbolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// idKey encodes ids big-endian so cursor order is numeric order.
func idKey(id int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func bumpGeneration(b *bbolt.Bucket, updatedUnix int64) error {
	var gen uint64
	if v := b.Get(keyGeneration); len(v) == 8 {
		gen = binary.BigEndian.Uint64(v)
	}
	gbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(gbuf, gen+1)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := b.Put(keyGeneration, gbuf); err != nil {
		return err
	}
	return b.Put(keyUpdated, ubuf)
}

var _ installer.Engine = (*Engine)(nil)
