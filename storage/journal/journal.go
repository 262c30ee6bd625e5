// Package journal durably records ledger/state inconsistencies in LevelDB so
// operators can reconcile them after the fact.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"stakegov/native/common"
)

const keyPrefix = "inconsistency/"

// Entry is a journaled inconsistency with its storage key.
type Entry struct {
	Key string `json:"key"`
	common.Inconsistency
}

// Journal is an append-only LevelDB log of inconsistencies.
type Journal struct {
	mu  sync.Mutex
	db  *leveldb.DB
	seq uint64
}

var _ common.Journal = (*Journal)(nil)

// Open creates or opens a journal at path.
func Open(path string) (*Journal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return newJournal(db)
}

// OpenMemory returns a journal that lives only in memory.
func OpenMemory() (*Journal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("journal: open memory: %w", err)
	}
	return newJournal(db)
}

func newJournal(db *leveldb.DB) (*Journal, error) {
	j := &Journal{db: db}
	iter := db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()
	if iter.Last() {
		seq, err := strconv.ParseUint(strings.TrimPrefix(string(iter.Key()), keyPrefix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("journal: corrupt key %q: %w", iter.Key(), err)
		}
		j.seq = seq
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}
	return j, nil
}

func key(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

// Append implements common.Journal. Writes are synced before returning.
func (j *Journal) Append(ctx context.Context, rec common.Inconsistency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	next := j.seq + 1
	if err := j.db.Put(key(next), payload, nil); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	j.seq = next
	return nil
}

// List returns up to limit entries, oldest first. A non-positive limit
// returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	iter := j.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()
	out := make([]Entry, 0)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec common.Inconsistency
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("journal: decode %s: %w", iter.Key(), err)
		}
		out = append(out, Entry{Key: string(iter.Key()), Inconsistency: rec})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("journal: iterate: %w", err)
	}
	return out, nil
}

// Resolve removes an entry once the operator repaired the local record.
func (j *Journal) Resolve(_ context.Context, entryKey string) error {
	if !strings.HasPrefix(entryKey, keyPrefix) {
		return fmt.Errorf("journal: invalid key %q", entryKey)
	}
	if _, err := j.db.Get([]byte(entryKey), nil); err != nil {
		if err == leveldb.ErrNotFound {
			return fmt.Errorf("journal: entry %s not found", entryKey)
		}
		return fmt.Errorf("journal: read: %w", err)
	}
	if err := j.db.Delete([]byte(entryKey), nil); err != nil {
		return fmt.Errorf("journal: delete: %w", err)
	}
	return nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
