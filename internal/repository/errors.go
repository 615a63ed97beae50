// Package repository persists users, roles and refresh tokens.  The sentinel
// values below let higher layers tell "absent" apart from infrastructure
// failures without depending on a particular SQL driver.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is taken.
// The flows check existence first; this covers the race between two
// registrations of the same address.
var ErrEmailExists = errors.New("email already exists")

// isDuplicate recognises unique-key violations from MySQL (1062) and SQLite.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
