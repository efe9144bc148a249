// Package analyzer speaks the Peregrine daemon's wire protocols: the
// newline-delimited JSON subscription socket and the server-event stream a
// freshly spawned daemon emits on stdout.
package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidResponse indicates a daemon message that does not match any
// shape this client understands.
var ErrInvalidResponse = errors.New("invalid response from analyzer server")

// Error is one type error as reported by the daemon. Lines are 1-based,
// columns 0-based.
type Error struct {
	Path        string `json:"path"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	StopLine    int    `json:"stop_line"`
	StopColumn  int    `json:"stop_column"`
	Code        int64  `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ParseTypeErrors parses a `["TypeErrors", [error, ...]]` payload. The
// payload may arrive either as the full line read off the socket or as the
// already-decoded `body` of a subscription response.
func ParseTypeErrors(raw json.RawMessage) ([]Error, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(elements) != 2 {
		return nil, fmt.Errorf("%w: expected a two-element response, got %d elements", ErrInvalidResponse, len(elements))
	}

	var kind string
	if err := json.Unmarshal(elements[0], &kind); err != nil {
		return nil, fmt.Errorf("%w: response kind is not a string", ErrInvalidResponse)
	}
	if kind != "TypeErrors" {
		return nil, fmt.Errorf("%w: unexpected response kind %q", ErrInvalidResponse, kind)
	}

	var typeErrors []Error
	if err := json.Unmarshal(elements[1], &typeErrors); err != nil {
		return nil, fmt.Errorf("%w: malformed error list: %v", ErrInvalidResponse, err)
	}
	return typeErrors, nil
}
