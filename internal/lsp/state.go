package lsp

import (
	"sync"

	"go.lsp.dev/protocol"
)

// ServerState is the per-session mutable state shared between the server
// loop and the bridge task. Both goroutines mutate it, so every access goes
// through the mutex; critical sections never span I/O.
//
// The diagnostics map may contain paths the editor has not opened —
// diagnostics are workspace-wide and a file may be opened later.
type ServerState struct {
	mu              sync.Mutex
	openedDocuments map[string]struct{}
	diagnostics     map[string][]protocol.Diagnostic
}

// NewServerState creates an empty state. One state is created per client
// session, after a successful initialize.
func NewServerState() *ServerState {
	return &ServerState{
		openedDocuments: make(map[string]struct{}),
		diagnostics:     make(map[string][]protocol.Diagnostic),
	}
}

// OpenDocument records that the editor opened path.
func (s *ServerState) OpenDocument(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openedDocuments[path] = struct{}{}
}

// CloseDocument removes path from the opened set and reports whether it was
// actually open.
func (s *ServerState) CloseDocument(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.openedDocuments[path]; !ok {
		return false
	}
	delete(s.openedDocuments, path)
	return true
}

// OpenedDocuments returns a snapshot of the opened paths.
func (s *ServerState) OpenedDocuments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.openedDocuments))
	for path := range s.openedDocuments {
		paths = append(paths, path)
	}
	return paths
}

// DiagnosticsFor returns the current diagnostics for path.
func (s *ServerState) DiagnosticsFor(path string) ([]protocol.Diagnostic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	diagnostics, ok := s.diagnostics[path]
	return diagnostics, ok
}

// SetDiagnostics replaces the whole diagnostics map. Updates are wholesale;
// entries are never patched in place.
func (s *ServerState) SetDiagnostics(diagnostics map[string][]protocol.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = diagnostics
}
