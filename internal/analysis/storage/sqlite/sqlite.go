// Package sqlite persists analysis runs and their histogram payloads.
//
// Stores take a plain *sql.DB; connection setup and schema migrations are
// the internal/db package's job.
package sqlite

import (
	"strings"
	"time"
)

// retryOnBusy retries a write a few times when SQLite reports lock
// contention. Reads go through the driver's busy timeout instead.
func retryOnBusy(fn func() error) error {
	const attempts = 5

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := err.Error()
		if !strings.Contains(msg, "database is locked") && !strings.Contains(msg, "database is busy") {
			return err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return err
}
