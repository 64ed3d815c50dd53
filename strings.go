package teflib

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StringID is an interned name, category or argument key.
type StringID uint8

// MaxStrings is the capacity of a StringTable.
const MaxStrings = 256

var (
	// ErrStringRegistered is returned when an id is registered twice with
	// different text.
	ErrStringRegistered = errors.New("string id already registered")
)

// StringTable maps interned ids to display strings.
// It is written during setup and read without locking afterwards, so every
// Register must happen before recording starts on other goroutines.
type StringTable struct {
	text   [MaxStrings]string
	quoted [MaxStrings]string
	set    [MaxStrings]bool
}

// Register assigns text to id. Registering identical text again is a no-op.
func (st *StringTable) Register(id StringID, text string) error {
	if st.set[id] {
		if st.text[id] == text {
			return nil
		}
		return fmt.Errorf("id %d (%q): %w", id, st.text[id], ErrStringRegistered)
	}

	quoted, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("quote %q: %w", text, err)
	}

	st.text[id] = text
	st.quoted[id] = string(quoted)
	st.set[id] = true
	return nil
}

// Lookup returns the text registered for id.
func (st *StringTable) Lookup(id StringID) (string, bool) {
	return st.text[id], st.set[id]
}

// Registered reports whether id has text.
func (st *StringTable) Registered(id StringID) bool {
	return st.set[id]
}

// Len returns the number of registered ids.
func (st *StringTable) Len() int {
	var n int
	for _, ok := range st.set {
		if ok {
			n++
		}
	}
	return n
}

// mustBeRegistered panics on an unregistered id. Recording with one is a
// programmer error, not a runtime condition.
func (st *StringTable) mustBeRegistered(id StringID) {
	if !st.set[id] {
		panic(fmt.Sprintf("teflib: string id %d is not registered", id))
	}
}

// jsonString returns the JSON-quoted form of id.
func (st *StringTable) jsonString(id StringID) string {
	return st.quoted[id]
}
