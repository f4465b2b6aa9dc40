package persistence

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"trend-grid-bot-go/internal/models"
)

// badgerRepository keeps the whole engine state under a single key. The state
// is small (phase + order book of one symbol), so one JSON blob per save beats
// a per-order key scheme.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
}

// NewBadgerRepository opens (or creates) the database at dbPath.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logger is noisy at startup; DB errors still surface
	// through the operation return values.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{
		db:       db,
		stateKey: []byte("engine_state"),
	}, nil
}

// SaveState atomically replaces the persisted state.
func (r *badgerRepository) SaveState(state *models.PersistedState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.stateKey, data)
	})
}

// LoadState returns (nil, nil) when the database holds no state yet.
func (r *badgerRepository) LoadState() (*models.PersistedState, error) {
	var state models.PersistedState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("empty state value")
			}
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
