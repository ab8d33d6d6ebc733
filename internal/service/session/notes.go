package session

import "strings"

// NoteBuffer accumulates finalized sentences between summaries.
type NoteBuffer struct {
	b strings.Builder
}

// Append adds a finalized sentence.
func (n *NoteBuffer) Append(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if n.b.Len() > 0 {
		n.b.WriteByte(' ')
	}
	n.b.WriteString(text)
}

// Flush returns the accumulated text and empties the buffer.
func (n *NoteBuffer) Flush() string {
	s := n.b.String()
	n.b.Reset()
	return s
}

// Len is the length of the accumulated text in bytes.
func (n *NoteBuffer) Len() int {
	return n.b.Len()
}
