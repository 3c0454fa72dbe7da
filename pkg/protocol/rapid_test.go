package protocol

import (
	"testing"

	"pgregory.net/rapid"
)

// TestMessageRoundTrip checks that any well-formed message survives a
// serialize/parse cycle, as long as no field contains the delimiter
// (unescapable by design) and the final parameter is non-empty (a
// trailing delimiter is dropped on parse).
func TestMessageRoundTrip(t *testing.T) {
	field := rapid.StringMatching(`[^|\r\n]*`)

	rapid.Check(t, func(t *rapid.T) {
		command := rapid.StringMatching(`[A-Z_]+`).Draw(t, "command")
		params := rapid.SliceOfN(field, 0, 5).Draw(t, "params")
		if len(params) > 0 && params[len(params)-1] == "" {
			params[len(params)-1] = "x"
		}

		original := Message{Command: command, Params: params}
		parsed := ParseMessage(original.Serialize())

		if parsed.Command != original.Command {
			t.Fatalf("command mismatch: got %q, want %q", parsed.Command, original.Command)
		}
		if len(parsed.Params) != len(original.Params) {
			t.Fatalf("param count mismatch: got %d, want %d", len(parsed.Params), len(original.Params))
		}
		for i := range parsed.Params {
			if parsed.Params[i] != original.Params[i] {
				t.Fatalf("param %d mismatch: got %q, want %q", i, parsed.Params[i], original.Params[i])
			}
		}
	})
}

// TestParseNeverPanics feeds arbitrary lines through the parser.
func TestParseNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		line := rapid.String().Draw(t, "line")
		msg := ParseMessage(line)
		_ = msg.Serialize()
	})
}
