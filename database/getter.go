package database

import (
	"sync"
)

// Getter supports atomically switching databases on the fly - this occurs on every
// successful refresh of a zone. All database access for each request should go via
// Getter.Current() and go-routines should not hold on to the returned value for longer
// than a single set of related accesses (such as an ANY query which might access SOA, NS
// and address RRs).
//
// The Getter exists because the database is read-only once populated and rather than
// having update capabilities they are simply replaced. Readers therefore see either the
// old or the new database in its entirety, never a mixture.
type Getter struct {
	mu sync.RWMutex
	db *Database
}

// NewGetter creates a Getter with an empty database. This ensures Getter.Current()
// always returns a valid pointer.
func NewGetter() *Getter {
	return &Getter{db: NewDatabase()}
}

// Replace the current database. The old database will eventually garbage collect
// out of existence once the go-routines re-get via Current(). Replace can be called with
// a nil replacement pointer, in which case Replace() does nothing.
func (t *Getter) Replace(newDB *Database) {
	if newDB == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.db = newDB
}

// Current returns the current database under mutex protection.
func (t *Getter) Current() *Database {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.db
}
