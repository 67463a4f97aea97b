package indicator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter is returned by constructors for out-of-domain
	// parameters. It is never returned by an update.
	ErrInvalidParameter = errors.New("indicator: invalid parameter")

	// ErrUnknownType is returned for an indicator type outside the known set.
	ErrUnknownType = errors.New("indicator: unknown type")

	// ErrSnapshotVersion is returned for snapshots written by a newer schema.
	ErrSnapshotVersion = errors.New("indicator: unsupported snapshot version")

	// ErrSnapshotMismatch is returned when a snapshot's type or parameters
	// differ from the indicator it is restored into.
	ErrSnapshotMismatch = errors.New("indicator: snapshot does not match indicator")

	// ErrSnapshotCorrupt is returned when snapshot state is internally inconsistent.
	ErrSnapshotCorrupt = errors.New("indicator: corrupt snapshot")
)

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return invalidParam("%s period must be positive, got %d", name, period)
	}
	return nil
}
