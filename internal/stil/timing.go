package stil

import (
	"fmt"
	"strings"
)

// Edge classification of a waveform definition.
const (
	EdgeUnknown = -1 // direction could not be determined
	EdgeStrobe  = 0  // compare edge (STROBE)
	EdgeDriver  = 1  // drive edge (CLOCK)
	EdgeBidir   = 2  // drives and compares (CLOCK + STROBE)
)

// wfcPatternTable maps a reduced edge pattern to its vector-replacement
// character and edge format.
var wfcPatternTable = map[string][2]string{
	"D":   {"0", "NORMAL"},
	"U":   {"1", "NORMAL"},
	"UD":  {"0", "DNRZ"},
	"DU":  {"1", "DNRZ"},
	"UDU": {"N", ""},
	"DUD": {"P", ""},
	"N":   {"0", ""},
	"P":   {"Q", ""},
	"Z":   {"X", ""},
	"":    {"X", ""},
	"L":   {"L", "C"},
	"H":   {"H", "C"},
	"X":   {"X", "C"},
	"T":   {"T", "C"},
	"V":   {"V", "C"},
	"l":   {"l", "CC"},
	"h":   {"h", "C"},
	"t":   {"t", "C"},
	"v":   {"v", "C"},
}

// TimingData is one waveform definition: a signal or group, a WFC
// string, and up to four time/edge pairs. Definitions with multi-char
// WFC strings split into one child per character; the parent keeps the
// children and aggregates their patterns.
type TimingData struct {
	Parent *TimingData
	WFT    string
	Period string
	Signal string
	WFC    string
	T1, E1 string
	T2, E2 string
	T3, E3 string
	T4, E4 string

	Children []*TimingData

	// IsStrobe is EdgeDriver/EdgeStrobe/EdgeBidir/EdgeUnknown.
	IsStrobe int
	// EdgeFormat is "", "NORMAL", "DNRZ", "RZ", "RO", "C" or "CC".
	EdgeFormat string
	// VectorReplacement is the character folded into the Vector stream
	// for this WFC, "" when no replacement applies.
	VectorReplacement string
}

// NewTimingData creates a definition with unknown classification.
func NewTimingData() *TimingData {
	return &TimingData{IsStrobe: EdgeUnknown}
}

// EdgeCount counts the pairs where both time and edge are present.
func (td *TimingData) EdgeCount() int {
	count := 0
	if td.T1 != "" && td.E1 != "" {
		count++
	}
	if td.T2 != "" && td.E2 != "" {
		count++
	}
	if td.T3 != "" && td.E3 != "" {
		count++
	}
	if td.T4 != "" && td.E4 != "" {
		count++
	}
	return count
}

// rawEdgePattern concatenates the uppercased edge tokens with N folded
// into D, without collapsing runs.
func (td *TimingData) rawEdgePattern() string {
	var b strings.Builder
	for _, e := range []string{td.E1, td.E2, td.E3, td.E4} {
		if e != "" {
			b.WriteString(strings.ToUpper(e))
		}
	}
	return strings.ReplaceAll(b.String(), "N", "D")
}

// EdgePattern reduces the edge tokens to the form looked up in the
// pattern table: N folds into D, consecutive duplicates collapse, and
// patterns longer than one character drop the harmless P/X/Z modifiers.
func (td *TimingData) EdgePattern() string {
	raw := td.rawEdgePattern()

	var b strings.Builder
	var last byte
	for i := 0; i < len(raw); i++ {
		if i == 0 || raw[i] != last {
			b.WriteByte(raw[i])
			last = raw[i]
		}
	}
	pattern := b.String()
	if len(pattern) > 1 {
		pattern = strings.NewReplacer("P", "", "X", "", "Z", "").Replace(pattern)
	}
	return pattern
}

// Split breaks a multi-character definition into one child per WFC
// character, distributing each edge string character-wise (tiling the
// edge string when its length differs from the WFC count). Returns the
// analysable records: the children, or the definition itself when no
// split applies.
func (td *TimingData) Split() []*TimingData {
	if len(td.WFC) <= 1 {
		return []*TimingData{td}
	}

	n := len(td.WFC)
	edge1 := tileEdge(td.E1, n)
	if strings.TrimSpace(edge1) == "" {
		return []*TimingData{td}
	}

	children := make([]*TimingData, 0, n)
	for i := 0; i < n; i++ {
		child := NewTimingData()
		child.Parent = td
		child.WFT = td.WFT
		child.Period = td.Period
		child.Signal = td.Signal
		child.WFC = td.WFC[i : i+1]
		child.T1 = td.T1
		child.E1 = edge1[i : i+1]
		children = append(children, child)
	}
	if edge2 := tileEdge(td.E2, n); strings.TrimSpace(edge2) != "" {
		for i, child := range children {
			child.T2 = td.T2
			child.E2 = edge2[i : i+1]
		}
	}
	if edge3 := tileEdge(td.E3, n); strings.TrimSpace(edge3) != "" {
		for i, child := range children {
			child.T3 = td.T3
			child.E3 = edge3[i : i+1]
		}
	}
	if edge4 := tileEdge(td.E4, n); strings.TrimSpace(edge4) != "" {
		for i, child := range children {
			child.T4 = td.T4
			child.E4 = edge4[i : i+1]
		}
	}

	td.Children = children
	return children
}

// tileEdge stretches an edge string to n characters when the source
// wrote a single token for a multi-character WFC list.
func tileEdge(edge string, n int) string {
	if edge == "" || len(edge) == n {
		return edge
	}
	tiled := strings.Repeat(edge, n)
	return tiled[:n]
}

// Analyze classifies the definition (or each of its children): it
// infers the vector-replacement character and edge format from the edge
// pattern and decides driver/strobe/bidirectional from the signal
// direction. Unknown patterns surface a warning on the handler and
// default the replacement to X.
func (td *TimingData) Analyze(signalType string, handler EventHandler) {
	if td.Parent != nil {
		return
	}

	targets := td.Children
	if len(targets) == 0 {
		targets = []*TimingData{td}
	}

	for _, t := range targets {
		if t.EdgeCount() == 0 {
			continue
		}
		pattern := t.EdgePattern()
		entry, ok := wfcPatternTable[pattern]
		if !ok {
			if handler != nil {
				handler.OnParseError(fmt.Sprintf("warning: %s:%s edge pattern %q has no edge format", t.Signal, t.WFC, pattern), "")
			}
			t.VectorReplacement = "X"
			continue
		}
		t.VectorReplacement = entry[0]
		t.EdgeFormat = entry[1]
		t.classify(signalType)
	}

	td.aggregate()
}

// classify sets IsStrobe from the signal direction, falling back to the
// edge format when the direction is unknown.
func (td *TimingData) classify(signalType string) {
	switch signalType {
	case DirOut:
		td.IsStrobe = EdgeStrobe
	case DirIn:
		td.IsStrobe = EdgeDriver
	case DirInOut:
		td.IsStrobe = EdgeBidir
	case DirSupply, DirPseudo:
		td.IsStrobe = EdgeUnknown
	default:
		if td.EdgeFormat == "C" || td.EdgeFormat == "CC" {
			td.IsStrobe = EdgeDriver
		} else {
			td.IsStrobe = EdgeStrobe
		}
	}
}

// aggregate infers a table-wide format from the children's raw edge
// patterns: UDU+DUD children become N/P with no parent format, UUU+UDU
// without a falling variant makes the parent RO, DDD+DUD without a
// rising variant makes it RZ.
func (td *TimingData) aggregate() {
	if len(td.Children) == 0 {
		return
	}

	has := make(map[string]bool)
	for _, child := range td.Children {
		has[child.rawEdgePattern()] = true
	}

	switch {
	case has["UDU"] && has["DUD"]:
		td.EdgeFormat = ""
	case has["UUU"] && has["UDU"] && !has["DDD"] && !has["DUD"]:
		td.EdgeFormat = "RO"
	case has["DDD"] && has["DUD"] && !has["UUU"] && !has["UDU"]:
		td.EdgeFormat = "RZ"
	}
}
