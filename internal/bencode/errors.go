package bencode

import "fmt"

// MalformedError reports a decode failure together with the byte offset at
// which it was detected, so callers can log or test against the exact
// failure point instead of matching on message text.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed bencode at offset %d: %s", e.Offset, e.Reason)
}

func malformed(offset int, reason string) error {
	return &MalformedError{Offset: offset, Reason: reason}
}
