package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrNoVersionTable signals a database without version bookkeeping, which
	// usually means the baseline schema was never installed.
	ErrNoVersionTable = errors.New("migrate: version table not found")

	// ErrVersionTableEmpty signals a version table with no row to read.
	ErrVersionTableEmpty = errors.New("migrate: version table has no rows")
)

// UnknownVersionError signals a stored schema version that no script in the
// chain upgrades from.
type UnknownVersionError struct {
	Version int
}

func (e UnknownVersionError) Error() string {
	return fmt.Sprintf("no script upgrades from schema version %d", e.Version)
}

// StatementError signals a statement the database rejected. Statement is the
// 1-based position within the script.
type StatementError struct {
	Script    string
	Statement int
	SQL       string
	Err       error
}

func (e StatementError) Error() string {
	return fmt.Sprintf("%s: statement %d failed: %v", e.Script, e.Statement, e.Err)
}

func (e StatementError) Unwrap() error {
	return e.Err
}

// VersionSkewError signals a script whose statements all ran but left the
// stored schema version somewhere other than the script's target.
type VersionSkewError struct {
	Script string
	Want   int
	Got    int
}

func (e VersionSkewError) Error() string {
	return fmt.Sprintf("%s: stored schema version is %d after apply, want %d", e.Script, e.Got, e.Want)
}

func IsUnknownVersion(err error) bool {
	var ue UnknownVersionError
	return errors.As(err, &ue)
}

func IsStatementError(err error) bool {
	var se StatementError
	return errors.As(err, &se)
}

func IsVersionSkew(err error) bool {
	var ve VersionSkewError
	return errors.As(err, &ve)
}
