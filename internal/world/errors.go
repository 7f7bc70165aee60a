package world

import "fmt"

// InvariantError reports a broken physical invariant. It always indicates a bug in the
// feedback coupling and aborts the tick that produced it.
type InvariantError struct {
	Component string
	Cell      int // Linear cell index, -1 when not cell-specific
	Plate     int // Plate id, -1 when not plate-specific
	Detail    string
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("%s invariant violated: %s", e.Component, e.Detail)
	if e.Cell >= 0 {
		msg += fmt.Sprintf(" (cell %d)", e.Cell)
	}
	if e.Plate >= 0 {
		msg += fmt.Sprintf(" (plate %d)", e.Plate)
	}
	return msg
}

// Invariant builds an InvariantError for a single cell.
func Invariant(component string, cell int, format string, args ...any) *InvariantError {
	return &InvariantError{
		Component: component,
		Cell:      cell,
		Plate:     -1,
		Detail:    fmt.Sprintf(format, args...),
	}
}
