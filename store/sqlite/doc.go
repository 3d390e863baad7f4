// Package sqlite implements store.Store on SQLite through the pure-Go
// modernc.org/sqlite driver. Suitable for embedded deployments and tests:
//
//	db, _ := sql.Open("sqlite", "file:walkthrough.db")
//	s := sqlite.New(db)
//	if err := s.Migrate(ctx); err != nil { ... }
//
// The caller owns the *sql.DB unless the store was created with Open.
package sqlite
