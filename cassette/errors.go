package cassette

import "fmt"

type (
	RowNotFound struct {
		Row string
	}

	ColumnNotFound struct {
		Column string
	}

	ReadOnlyTape struct {
		Path string
	}

	InvalidTape struct {
		Path  string
		Table string
		cause error
	}

	IDExhausted struct {
		Attempts int
	}
)

func (r RowNotFound) Error() string {
	return fmt.Sprintf("row %v not found", r.Row)
}

func (r RowNotFound) Is(target error) bool {
	_, ok := target.(RowNotFound)
	return ok
}

func (c ColumnNotFound) Error() string {
	return fmt.Sprintf("column %v not found", c.Column)
}

func (c ColumnNotFound) Is(target error) bool {
	_, ok := target.(ColumnNotFound)
	return ok
}

func (r ReadOnlyTape) Error() string {
	return fmt.Sprintf("cassette %v was opened as read-only", r.Path)
}

func (r ReadOnlyTape) Is(target error) bool {
	_, ok := target.(ReadOnlyTape)
	return ok
}

func (i InvalidTape) Error() string {
	if i.cause != nil {
		return fmt.Sprintf("cassette %v has an invalid table %v, cause %v", i.Path, i.Table, i.cause)
	}
	return fmt.Sprintf("cassette %v has an invalid table %v", i.Path, i.Table)
}

func (i InvalidTape) Unwrap() error {
	return i.cause
}

func (i IDExhausted) Error() string {
	return fmt.Sprintf("unable to allocate a unique row id after %v attempts", i.Attempts)
}
