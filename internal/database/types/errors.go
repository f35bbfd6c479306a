package types

import (
	"fmt"
	"strconv"
)

// StoreError reports a failed read or write against the database.
type StoreError struct {
	Op      string
	GuildID uint64
	Err     error
}

func (e *StoreError) Error() string {
	if e.GuildID == 0 {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("store: %s (guild %d): %v", e.Op, e.GuildID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ParseError reports malformed snapshot input.
// Pointer is a JSON pointer to the offending value, empty for the document root.
type ParseError struct {
	Pointer string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Pointer == "" {
		return "parse: " + e.Err.Error()
	}

	return fmt.Sprintf("parse %s: %v", e.Pointer, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ImportItemError reports a single guild of a bulk import that could not be persisted.
type ImportItemError struct {
	Key     string // raw key of the guild entry in the snapshot
	GuildID uint64
	Err     error
}

func (e *ImportItemError) Error() string {
	return "guild " + strconv.Quote(e.Key) + ": " + e.Err.Error()
}

func (e *ImportItemError) Unwrap() error {
	return e.Err
}
