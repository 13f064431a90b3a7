package wordbook

import "fmt"

// Error reports a failed word book operation together with the storage fault
// that caused it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("wordbook %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
