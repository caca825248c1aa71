// Package app implements the loan lifecycle engine: the coupled state
// transitions between a book and its loans, credential checks, and the
// catalog read paths the HTTP layer exposes.
package app

import (
	"fmt"
	"time"

	"libralend/internal/store"
	"libralend/internal/validate"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	LoanPeriodDays int
	JWTSecret      string
	SessionTTL     time.Duration

	// Store and Sessions override the defaults built from the fields
	// above. Tests inject in-memory implementations here.
	Store    store.Store
	Sessions store.SessionStore
	Revoker  store.TokenRevoker

	// Now overrides the clock used for deadline arithmetic.
	Now func() time.Time
}

// App wires storage, validation, and session management together. It
// holds no mutable state of its own; everything lives in the store.
type App struct {
	store    store.Store
	gate     *validate.Gate
	sessions store.SessionStore
	now      func() time.Time
}

// New constructs the application. When no Store is injected it opens
// the Postgres store from DatabaseURL; when no SessionStore is
// injected it builds an HS256 JWT store from JWTSecret.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL, cfg.LoanPeriodDays)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessions := cfg.Sessions
	if sessions == nil {
		revoker := cfg.Revoker
		if revoker == nil {
			revoker = store.NewMemoryTokenRevoker()
		}
		var err error
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &App{
		store:    dataStore,
		gate:     validate.NewGate(dataStore),
		sessions: sessions,
		now:      now,
	}, nil
}
