package stil

import (
	"fmt"
	"strings"
)

type elemKind int

const (
	elemVector elemKind = iota
	elemMicro
	elemLoopMarker
	elemMatchMarker
)

// deferredElem is one element of the transformer's deferred list: a
// vector row, a micro-only row, or a loop/match-loop marker waiting for
// its block to close.
type deferredElem struct {
	kind    elemKind
	entries []VectorEntry // elemVector only
	instr   string
	param   string
	label   string
	depth   int    // marker nesting depth
	count   string // marker raw count token
}

// isPlain reports whether a vector row still accepts a retroactive
// micro-instruction.
func (e *deferredElem) isPlain() bool {
	return e.kind == elemVector && (e.instr == "" || e.instr == DefaultInstruction)
}

func (e *deferredElem) clone() *deferredElem {
	c := *e
	c.entries = make([]VectorEntry, len(e.entries))
	copy(c.entries, e.entries)
	return &c
}

// parserState is the per-conversion state machine of the pattern
// transformer. One value per parse session; never shared across
// concurrent conversions.
type parserState struct {
	currentWFT   string
	currentLabel string
	loopDepth    int
	bracketDepth int

	deferred []*deferredElem
	pending  *deferredElem

	vectorCount int
	vectorAddr  int
	readSize    int64

	// replacement holds the signal substitutions of the Call/Macro
	// currently being expanded.
	replacement map[string]string
	callDepth   int

	// bpOpen/bpCount track the current BreakPoint region.
	bpOpen  bool
	bpCount int

	// autoLabels resolves generated loop labels once the carrying row
	// receives its address.
	autoLabels map[string]string
	autoSeq    int
}

func newParserState() *parserState {
	return &parserState{autoLabels: make(map[string]string)}
}

const autoLabelPrefix = "\x00auto"

// newAutoLabel allocates a placeholder resolved to "0x%06X" of the
// carrying row's address at emission time.
func (st *parserState) newAutoLabel() string {
	st.autoSeq++
	return fmt.Sprintf("%s%d", autoLabelPrefix, st.autoSeq)
}

func isAutoLabel(s string) bool {
	return strings.HasPrefix(s, autoLabelPrefix)
}

// resolveLabel turns a placeholder into its concrete address label,
// registering it on first use (the LI/MBGN row emits before the row
// that references it).
func (st *parserState) resolveLabel(label string, addr int) string {
	if !isAutoLabel(label) {
		return label
	}
	if resolved, ok := st.autoLabels[label]; ok {
		return resolved
	}
	resolved := fmt.Sprintf("0x%06X", addr)
	st.autoLabels[label] = resolved
	return resolved
}

// resolveParam substitutes a placeholder parameter with the label it
// was resolved to.
func (st *parserState) resolveParam(param string) string {
	if !isAutoLabel(param) {
		return param
	}
	if resolved, ok := st.autoLabels[param]; ok {
		return resolved
	}
	return param
}
