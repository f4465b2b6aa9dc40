// Package persistence stores the engine state between runs so a restart
// resumes with the orders it already placed instead of rediscovering them the
// hard way.
package persistence

import "trend-grid-bot-go/internal/models"

// StateRepository abstracts the storage engine from the rest of the bot.
type StateRepository interface {
	// SaveState atomically replaces the persisted state.
	SaveState(state *models.PersistedState) error

	// LoadState returns the persisted state, or (nil, nil) when none exists.
	LoadState() (*models.PersistedState, error)

	// Close flushes and closes the underlying store.
	Close() error
}
