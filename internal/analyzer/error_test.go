package analyzer

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseTypeErrors(t *testing.T) {
	payload := `["TypeErrors", [
		{"path": "/project/a.py", "line": 3, "column": 4, "stop_line": 3, "stop_column": 9,
		 "code": 7, "name": "Incompatible return type", "description": "Expected int, got str."},
		{"path": "/project/b.py", "line": 1, "column": 0, "stop_line": 2, "stop_column": 1,
		 "code": 16, "name": "Missing attribute", "description": "Object has no attribute x."}
	]]`

	typeErrors, err := ParseTypeErrors(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("ParseTypeErrors() error = %v", err)
	}
	if len(typeErrors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(typeErrors))
	}

	first := typeErrors[0]
	if first.Path != "/project/a.py" {
		t.Errorf("unexpected path: %q", first.Path)
	}
	if first.Line != 3 || first.Column != 4 || first.StopLine != 3 || first.StopColumn != 9 {
		t.Errorf("unexpected positions: %+v", first)
	}
	if first.Code != 7 {
		t.Errorf("unexpected code: %d", first.Code)
	}
	if first.Description != "Expected int, got str." {
		t.Errorf("unexpected description: %q", first.Description)
	}
}

func TestParseTypeErrorsEmpty(t *testing.T) {
	typeErrors, err := ParseTypeErrors(json.RawMessage(`["TypeErrors", []]`))
	if err != nil {
		t.Fatalf("ParseTypeErrors() error = %v", err)
	}
	if len(typeErrors) != 0 {
		t.Fatalf("expected no errors, got %d", len(typeErrors))
	}
}

func TestParseTypeErrorsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not JSON", `derp`},
		{"not an array", `{"name": "TypeErrors"}`},
		{"wrong arity", `["TypeErrors"]`},
		{"wrong kind", `["StatusUpdate", []]`},
		{"kind not a string", `[42, []]`},
		{"body not a list", `["TypeErrors", "all good"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTypeErrors(json.RawMessage(tt.payload))
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}
