package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is returned when the uploaded file has no header row.
	ErrEmptyInput = errors.New("input has no header row")

	// ErrUnreadableInput wraps delimited-text parse failures.
	ErrUnreadableInput = errors.New("unreadable input")

	// ErrMissingColumns is wrapped by MissingColumnsError.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrNoMatches signals that the exported shortlist is empty.
	// It is not a failure: the header has still been written.
	ErrNoMatches = errors.New("no records matched the suspicious filter criteria")
)

// MissingColumnsError lists the required columns absent from a header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	quoted := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(quoted, ", "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumns
}

// IsInputError reports whether err is a run-fatal problem with the uploaded file.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrUnreadableInput) ||
		errors.Is(err, ErrMissingColumns)
}
