package postgres

import "database/sql"

// Store implements store.Stores against PostgreSQL. It is assembled from
// the per-entity method sets in the other files of this package, the way
// the teacher's postgres.New(db) returns one struct that satisfies every
// interface in internal/app.Stores.
type Store struct {
	*BaseStore
}

func New(db *sql.DB) *Store {
	return &Store{BaseStore: NewBaseStore(db)}
}
