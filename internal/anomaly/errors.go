package anomaly

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptySeries indicates an input series without any observation.
	ErrEmptySeries = errors.New("empty series")
	// ErrDuplicateTimestamp indicates an ambiguous join key inside one input.
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	// ErrZeroDenominator indicates a percentage change against a zero base.
	ErrZeroDenominator = errors.New("zero denominator")
)

// DataError reports malformed or insufficient input. Index is -1 when no
// single row is at fault.
type DataError struct {
	Op        string
	Index     int
	Timestamp time.Time
	Err       error
}

func (e *DataError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("anomaly: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("anomaly: %s: row %d (%s): %v", e.Op, e.Index, e.Timestamp.UTC().Format(time.RFC3339), e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// IsDataError reports whether err carries a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

func seriesError(op string, err error) *DataError {
	return &DataError{Op: op, Index: -1, Err: err}
}
