package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	positionKey = []byte("position")
	txPrefix    = []byte("tx/")
)

// Position is the last chaincode event applied to the mirror
type Position struct {
	Block     uint64    `json:"block"`
	TxID      string    `json:"tx_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Checkpoint persists the mirror position in a local leveldb so a restarted
// syncer skips events it has already applied. Transactions of the latest
// block are tracked individually because a block holds many events.
type Checkpoint struct {
	db  *leveldb.DB
	mu  sync.RWMutex
	pos Position
}

// OpenCheckpoint opens or creates the checkpoint database at path
func OpenCheckpoint(path string) (*Checkpoint, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}
	return newCheckpoint(db)
}

// OpenMemoryCheckpoint returns a checkpoint that lives only in memory
func OpenMemoryCheckpoint() (*Checkpoint, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return newCheckpoint(db)
}

func newCheckpoint(db *leveldb.DB) (*Checkpoint, error) {
	cp := &Checkpoint{db: db}

	raw, err := db.Get(positionKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return cp, nil
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	if err := json.Unmarshal(raw, &cp.pos); err != nil {
		db.Close()
		return nil, fmt.Errorf("corrupt checkpoint: %w", err)
	}
	return cp, nil
}

// Position returns the last applied position
func (c *Checkpoint) Position() Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos
}

// LastProgress returns when the position last moved
func (c *Checkpoint) LastProgress() time.Time {
	return c.Position().UpdatedAt
}

// Applied reports whether the event of txID in block was already applied
func (c *Checkpoint) Applied(block uint64, txID string) (bool, error) {
	pos := c.Position()
	if pos.UpdatedAt.IsZero() || block > pos.Block {
		return false, nil
	}
	if block < pos.Block {
		return true, nil
	}
	return c.db.Has(txKey(block, txID), nil)
}

// MarkApplied records txID in block as applied and advances the position.
// Markers of older blocks are dropped in the same batch.
func (c *Checkpoint) MarkApplied(block uint64, txID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pos.UpdatedAt.IsZero() && block < c.pos.Block {
		return nil
	}

	next := Position{Block: block, TxID: txID, UpdatedAt: time.Now().UTC()}
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	if block > c.pos.Block {
		iter := c.db.NewIterator(&util.Range{Start: txPrefix, Limit: blockPrefix(block)}, nil)
		for iter.Next() {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return fmt.Errorf("failed to prune checkpoint: %w", err)
		}
	}
	batch.Put(txKey(block, txID), []byte{0})
	batch.Put(positionKey, raw)

	if err := c.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	c.pos = next
	return nil
}

// Close closes the underlying database
func (c *Checkpoint) Close() error {
	return c.db.Close()
}

func blockPrefix(block uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", txPrefix, block))
}

func txKey(block uint64, txID string) []byte {
	return append(blockPrefix(block), txID...)
}
