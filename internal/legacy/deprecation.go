// Package legacy adapts the three retired protocol generations onto the
// canonical store. One adapter per generation; adding a generation means
// adding an adapter, never touching the store.
package legacy

import (
	"marketchat/internal/config"
)

// Mode is a legacy generation's deprecation stage.
type Mode string

const (
	// ModeFull forwards reads and writes, with a deprecation notice on
	// every response.
	ModeFull Mode = "full"
	// ModeReadOnly forwards reads; writes are rejected with Gone before
	// they reach the store.
	ModeReadOnly Mode = "read-only"
	// ModeShutdown is read-only today, reserved for a stage that also
	// blocks reads.
	ModeShutdown Mode = "shutdown"
)

func (m Mode) IsValid() bool {
	return m == ModeFull || m == ModeReadOnly || m == ModeShutdown
}

// DeprecationState is resolved once at process start and threaded into each
// adapter explicitly, never read from ambient globals.
type DeprecationState struct {
	Generation string
	Mode       Mode
	Sunset     string
}

// StateFromConfig validates the configured mode, falling back to read-only:
// when in doubt, stop accepting legacy writes rather than legacy reads.
func StateFromConfig(generation string, gc config.GenerationConfig) DeprecationState {
	mode := Mode(gc.Mode)
	if !mode.IsValid() {
		mode = ModeReadOnly
	}
	return DeprecationState{Generation: generation, Mode: mode, Sunset: gc.Sunset}
}

// WritesAllowed reports whether create/update/delete operations may proceed.
func (s DeprecationState) WritesAllowed() bool {
	return s.Mode == ModeFull
}

// ReadsAllowed is true in every current mode; shutdown will flip this when
// the final stage ships.
func (s DeprecationState) ReadsAllowed() bool {
	return true
}

// Notice is attached to every legacy response so clients can track their own
// migration.
type Notice struct {
	Deprecated  bool   `json:"deprecated"`
	Generation  string `json:"generation"`
	Replacement string `json:"replacement"`
	Sunset      string `json:"sunset"`
}

func (s DeprecationState) Notice(replacement string) Notice {
	return Notice{
		Deprecated:  true,
		Generation:  s.Generation,
		Replacement: replacement,
		Sunset:      s.Sunset,
	}
}

// GoneBody is the structured rejection for writes past the read-only
// threshold, naming where the operation lives now.
type GoneBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Generation  string `json:"generation"`
	Replacement string `json:"replacement"`
	Sunset      string `json:"sunset"`
}

func (s DeprecationState) Gone(replacement string) GoneBody {
	return GoneBody{
		Error:       "gone",
		Message:     "this endpoint no longer accepts writes; use " + replacement,
		Generation:  s.Generation,
		Replacement: replacement,
		Sunset:      s.Sunset,
	}
}
