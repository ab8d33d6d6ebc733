// Package transcript assembles recognition fragments into stable sentences.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Mode selects how much translation work a sentence gets.
type Mode int

const (
	// ModeEconomy translates finalized sentences only.
	ModeEconomy Mode = iota
	// ModeFullPower also translates partial text while the sentence is
	// still being spoken.
	ModeFullPower
)

func (m Mode) String() string {
	switch m {
	case ModeEconomy:
		return "economy"
	case ModeFullPower:
		return "full_power"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(m))
	}
}

// ErrUnknownMode is returned by ParseMode for unrecognized mode names.
var ErrUnknownMode = errors.New("unknown translation mode")

// ParseMode accepts the String form of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "economy", "eco":
		return ModeEconomy, nil
	case "full_power", "full-power", "fullpower", "full":
		return ModeFullPower, nil
	default:
		return ModeEconomy, fmt.Errorf("%w %q", ErrUnknownMode, s)
	}
}

// SentenceState is the per-sentence lifecycle.
//
//	EMPTY → ACCUMULATING (first Partial) → FINALIZED (Final)
//	  │                                        ▲
//	  └────────────── Final ───────────────────┘
type SentenceState int

const (
	SentenceEmpty SentenceState = iota
	SentenceAccumulating
	SentenceFinalized
)

func (s SentenceState) String() string {
	switch s {
	case SentenceEmpty:
		return "EMPTY"
	case SentenceAccumulating:
		return "ACCUMULATING"
	case SentenceFinalized:
		return "FINALIZED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Buffer is the sentence in progress. ID is allocated when the buffer is
// created and becomes the id of the resulting Record, so it also keys the
// sentence's render slot while it is live.
type Buffer struct {
	ID        uint64
	Committed string
	Pending   string
	Mode      Mode
	State     SentenceState
}

// Text is the committed text with the pending partial overlaid.
func (b Buffer) Text() string {
	return joinText(b.Committed, b.Pending)
}

// Record is the immutable snapshot of a finalized sentence.
type Record struct {
	ID        uint64
	Text      string
	CreatedAt time.Time
	Mode      Mode
}

// Generator hands out strictly increasing sentence ids. Ids are never
// reused within a process, so a late response from an earlier session can
// never match a current sentence.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next() uint64 {
	return atomic.AddUint64(&g.counter, 1)
}

func joinText(committed, pending string) string {
	switch {
	case committed == "":
		return pending
	case pending == "":
		return committed
	case strings.HasSuffix(committed, " ") || strings.HasPrefix(pending, " "):
		return committed + pending
	default:
		return committed + " " + pending
	}
}
