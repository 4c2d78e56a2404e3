// Package delta implements the single-span edit operations used to keep
// per-participant text buffers synchronized. A delta is the minimal
// contiguous change between two text states: a common prefix is scanned off
// and the remainder is classified as an add, delete, or replace. Edits with
// two independent change regions cannot be represented exactly by this
// scheme; the replace payload carries the entire remainder of the new string
// from the divergence point, which callers on both ends of the wire rely on.
package delta

// Operation tags for a Delta, matching the wire diff format.
const (
	OpAdd     = "add"
	OpDelete  = "delete"
	OpReplace = "replace"
)

// Delta is one edit applied to a text buffer at a single contiguous span.
// Add carries (index, text); delete carries (index, count); replace carries
// (index, text) and overwrites from index to index+len(text).
type Delta struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Text  string `json:"text,omitempty"`
	Count int    `json:"count,omitempty"`
}

// Compute derives the delta transforming previous into current. The second
// return value is false when the strings are equal and there is nothing to
// send. Indices count runes, not bytes, so multi-byte characters are never
// split by a span boundary.
func Compute(previous, current string) (Delta, bool) {
	prev := []rune(previous)
	cur := []rune(current)

	i := 0
	for i < len(prev) && i < len(cur) && prev[i] == cur[i] {
		i++
	}

	switch {
	case i == len(prev) && i == len(cur):
		return Delta{}, false
	case i == len(prev):
		return Delta{Type: OpAdd, Index: i, Text: string(cur[i:])}, true
	case i == len(cur):
		return Delta{Type: OpDelete, Index: i, Count: len(prev) - i}, true
	default:
		// The replace payload is everything after the divergence point. A
		// common suffix is intentionally not trimmed; the wire format
		// predates this implementation and peers expect the full tail.
		return Delta{Type: OpReplace, Index: i, Text: string(cur[i:])}, true
	}
}

// Apply returns buffer with d applied, truncated to max runes when max > 0.
// Out-of-range indices are a caller contract violation; they are clamped to
// the nearest valid position rather than rejected, so a malformed delta can
// garble a buffer but never panic the server.
func Apply(buffer string, d Delta, max int) string {
	buf := []rune(buffer)
	idx := clamp(d.Index, 0, len(buf))

	var out []rune
	switch d.Type {
	case OpAdd:
		out = make([]rune, 0, len(buf)+len(d.Text))
		out = append(out, buf[:idx]...)
		out = append(out, []rune(d.Text)...)
		out = append(out, buf[idx:]...)
	case OpDelete:
		end := clamp(idx+d.Count, idx, len(buf))
		out = make([]rune, 0, len(buf)-(end-idx))
		out = append(out, buf[:idx]...)
		out = append(out, buf[end:]...)
	case OpReplace:
		text := []rune(d.Text)
		end := clamp(idx+len(text), idx, len(buf))
		out = make([]rune, 0, idx+len(text)+(len(buf)-end))
		out = append(out, buf[:idx]...)
		out = append(out, text...)
		out = append(out, buf[end:]...)
	default:
		return buffer
	}

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return string(out)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
