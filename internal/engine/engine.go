// Package engine binds the native ADM rendering engine.
//
// The engine exposes a single blocking entry point taking four input text
// slots and one output message slot. Everything the worker knows about a
// render is what crosses that boundary: the request strings going in, and a
// status code plus an optional engine-owned message coming out.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNotBuilt reports that the native bindings were not linked into the
	// current binary (built without cgo or without the admengine tag).
	ErrNotBuilt = errors.New("engine: native ADM engine bindings not built")

	// ErrUndecodableMessage is returned when the engine output message is not
	// valid UTF-8 text.
	ErrUndecodableMessage = errors.New("undecodable engine message")
)

// Request carries the four text arguments of a render call.
type Request struct {
	SourcePath      string
	DestinationPath string
	// GainMapping is passed as-is; empty means no mapping (NULL slot).
	GainMapping string
	// ElementID selects the AudioProgramme or AudioObject; empty means NULL.
	ElementID string
}

// EncodingError reports a request field that cannot be carried as a
// NUL-terminated string.
type EncodingError struct {
	Field string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid %s: contains NUL byte", e.Field)
}

type field struct {
	name  string
	value string
}

func (r Request) fields() []field {
	return []field{
		{"source_path", r.SourcePath},
		{"destination_path", r.DestinationPath},
		{"gain_mapping", r.GainMapping},
		{"element_id", r.ElementID},
	}
}

// Validate rejects any field holding an embedded NUL byte.
func (r Request) Validate() error {
	for _, f := range r.fields() {
		if strings.IndexByte(f.value, 0) >= 0 {
			return &EncodingError{Field: f.name}
		}
	}
	return nil
}

// Outcome is the engine's answer to a render call.
type Outcome struct {
	Code int
	// Message is a copy of the engine output slot, nil when the slot was
	// left NULL.
	Message []byte
}

func (o Outcome) Succeeded() bool { return o.Code == 0 }

// Text decodes the output message.
func (o Outcome) Text() (string, error) {
	if !utf8.Valid(o.Message) {
		return "", ErrUndecodableMessage
	}
	return string(o.Message), nil
}

// Failure is a non-zero engine status together with its decoded message.
type Failure struct {
	Code    int
	Message string
}

// Error returns the engine message verbatim.
func (f *Failure) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("engine returned status %d", f.Code)
	}
	return f.Message
}

// Engine performs one synchronous render.
type Engine interface {
	Render(req Request) (Outcome, error)
}

// Func adapts a function to the Engine interface.
type Func func(req Request) (Outcome, error)

func (f Func) Render(req Request) (Outcome, error) { return f(req) }
