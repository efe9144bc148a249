package lsp

import (
	"go.lsp.dev/protocol"

	"github.com/peregrine-check/peregrine/internal/analyzer"
)

const diagnosticSource = "Peregrine"

// toDiagnostic converts one analyzer error to an LSP diagnostic. The daemon
// reports 1-based lines and 0-based columns; LSP wants both 0-based.
func toDiagnostic(typeError analyzer.Error) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{
				Line:      uint32(typeError.Line - 1),
				Character: uint32(typeError.Column),
			},
			End: protocol.Position{
				Line:      uint32(typeError.StopLine - 1),
				Character: uint32(typeError.StopColumn),
			},
		},
		Severity: protocol.DiagnosticSeverityError,
		Source:   diagnosticSource,
		Message:  typeError.Description,
	}
}

// groupDiagnostics groups a flat error list by file path, preserving the
// daemon's reporting order within each file. Paths without errors are absent
// from the result.
func groupDiagnostics(typeErrors []analyzer.Error) map[string][]protocol.Diagnostic {
	result := make(map[string][]protocol.Diagnostic)
	for _, typeError := range typeErrors {
		result[typeError.Path] = append(result[typeError.Path], toDiagnostic(typeError))
	}
	return result
}
