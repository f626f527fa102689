// Package dtc decodes OBD-II diagnostic trouble codes and keeps the set of
// codes reported during one diagnostic session.
package dtc

import (
	"errors"
	"fmt"
)

// CodeLen is the width of a decoded code such as "P0301".
const CodeLen = 5

var (
	// ErrStoreFull is returned when the ECU reports more distinct codes than
	// the count it announced in its MIL-status response.
	ErrStoreFull        = errors.New("dtc: more codes than announced capacity")
	ErrStoreActive      = errors.New("dtc: store already initialized")
	ErrNegativeCapacity = errors.New("dtc: negative capacity")
)

var systemLetters = [4]byte{'P', 'C', 'B', 'U'}

const digits = "0123456789ABCDEF"

// Decode turns the two bytes of a mode 03 response pair into a code.
// ok is false for the all-zero pair, which marks an unused slot.
func Decode(b1, b2 byte) (code string, ok bool) {
	var c [CodeLen]byte
	c[0] = systemLetters[(b1>>6)&0x03]
	c[1] = digits[(b1>>4)&0x03]
	c[2] = digits[b1&0x03]
	c[3] = digits[(b2>>4)&0x0F]
	c[4] = digits[b2&0x0F]
	if c[1] == '0' && c[2] == '0' && c[3] == '0' && c[4] == '0' {
		return "", false
	}
	return string(c[:]), true
}

// Store holds the codes of one diagnostic session. Its capacity is fixed by
// Initialize; a cursor walks the slots with an extra "summary" position
// before the first slot.
//
// The zero value is an empty, uninitialized store.
type Store struct {
	codes  []string
	active bool
	// pos is 0 for the summary position, otherwise slot index + 1.
	pos int
}

// Initialize reserves capacity slots and resets the cursor to the summary.
func (s *Store) Initialize(capacity int) error {
	if s.active {
		return ErrStoreActive
	}
	if capacity < 0 {
		return ErrNegativeCapacity
	}
	s.codes = make([]string, 0, capacity)
	s.active = true
	s.pos = 0
	return nil
}

// Destroy releases the slots. Destroying an uninitialized store is a no-op.
func (s *Store) Destroy() {
	s.codes = nil
	s.active = false
	s.pos = 0
}

// Active reports whether Initialize has been called since the last Destroy.
func (s *Store) Active() bool { return s.active }

// Capacity is the number of codes announced for this session.
func (s *Store) Capacity() int { return cap(s.codes) }

// Len is the number of distinct codes stored so far.
func (s *Store) Len() int { return len(s.codes) }

// Codes returns a copy of the stored codes in arrival order.
func (s *Store) Codes() []string {
	out := make([]string, len(s.codes))
	copy(out, s.codes)
	return out
}

// Insert stores code unless an identical code is already present.
// It returns ErrStoreFull when every slot is taken by a different code.
func (s *Store) Insert(code string) error {
	for _, c := range s.codes {
		if c == code {
			return nil
		}
	}
	if len(s.codes) == cap(s.codes) {
		return fmt.Errorf("%w: %s (capacity %d)", ErrStoreFull, code, cap(s.codes))
	}
	s.codes = append(s.codes, code)
	return nil
}

// InsertPair decodes a byte pair and inserts the result.
func (s *Store) InsertPair(b1, b2 byte) error {
	code, ok := Decode(b1, b2)
	if !ok {
		return nil
	}
	return s.Insert(code)
}

// Next moves the cursor forward, wrapping from the last slot to the summary.
func (s *Store) Next() {
	n := cap(s.codes)
	if n == 0 {
		return
	}
	s.pos = (s.pos + 1) % (n + 1)
}

// Prev moves the cursor backward, wrapping from the summary to the last slot.
func (s *Store) Prev() {
	n := cap(s.codes)
	if n == 0 {
		return
	}
	s.pos = (s.pos + n) % (n + 1)
}

// Selected returns the slot index under the cursor. ok is false while the
// cursor is on the summary position.
func (s *Store) Selected() (index int, ok bool) {
	if s.pos == 0 {
		return 0, false
	}
	return s.pos - 1, true
}

// Current returns the code under the cursor. A selected slot that has not
// been filled yet yields an empty string with ok true.
func (s *Store) Current() (code string, ok bool) {
	i, ok := s.Selected()
	if !ok {
		return "", false
	}
	if i < len(s.codes) {
		return s.codes[i], true
	}
	return "", true
}
