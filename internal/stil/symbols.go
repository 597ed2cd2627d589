package stil

import (
	"sort"
	"strings"
)

// Signal directions as they appear in a Signals block.
const (
	DirIn     = "In"
	DirOut    = "Out"
	DirInOut  = "InOut"
	DirSupply = "Supply"
	DirPseudo = "Pseudo"
)

// HeaderField is one recognised key/value pair from a Header block.
type HeaderField struct {
	Key   string
	Value string
}

// PatternBurst names the signal-group domain it selects and the ordered
// patterns it runs.
type PatternBurst struct {
	Name     string
	Domain   string
	Patterns []string
}

// WaveformTable holds the analysed waveform definitions of one table,
// in source order.
type WaveformTable struct {
	Name string
	List []*TimingData
}

// SymbolTables holds everything the header pass extracts from a STIL
// file. One instance per conversion; never shared between concurrent
// conversions.
type SymbolTables struct {
	// Signals maps signal name to direction (In/Out/InOut/Supply/Pseudo).
	Signals map[string]string
	// SignalOrder preserves declaration order.
	SignalOrder []string
	// Groups maps a qualified "[domain.]group" name to its ordered
	// signal list.
	Groups map[string][]string
	// Timings holds waveform tables in declaration order.
	Timings []*WaveformTable
	// Bursts maps burst name to its definition.
	Bursts map[string]*PatternBurst
	// Headers holds recognised header fields in source order.
	Headers []HeaderField
	// Procedures and MacroDefs map name to raw body text, sliced
	// verbatim from the source.
	Procedures map[string]string
	MacroDefs  map[string]string
	// PatternHeader is the ordered list of distinct signal/group keys of
	// the first V statement, reused when rows carry partial data.
	PatternHeader []string
	// SelectedBurst and SelectedTiming come from the last PatternExec;
	// without one, SelectedBurst is the first PatternBurst declared.
	SelectedBurst  string
	SelectedTiming string

	timingIndex map[string]*WaveformTable
}

// NewSymbolTables creates empty tables.
func NewSymbolTables() *SymbolTables {
	return &SymbolTables{
		Signals:     make(map[string]string),
		Groups:      make(map[string][]string),
		Bursts:      make(map[string]*PatternBurst),
		Procedures:  make(map[string]string),
		MacroDefs:   make(map[string]string),
		timingIndex: make(map[string]*WaveformTable),
	}
}

// AddSignal records a signal declaration, preserving order.
func (s *SymbolTables) AddSignal(name, direction string) {
	if _, exists := s.Signals[name]; !exists {
		s.SignalOrder = append(s.SignalOrder, name)
	}
	s.Signals[name] = direction
}

// Timing returns the waveform table with the given name, creating it in
// declaration order on first use.
func (s *SymbolTables) Timing(wft string) *WaveformTable {
	if t, ok := s.timingIndex[wft]; ok {
		return t
	}
	t := &WaveformTable{Name: wft}
	s.Timings = append(s.Timings, t)
	s.timingIndex[wft] = t
	return t
}

// SelectedDomain returns the signal-group domain of the selected
// pattern burst, "" for the default domain.
func (s *SymbolTables) SelectedDomain() string {
	if b, ok := s.Bursts[s.SelectedBurst]; ok {
		return b.Domain
	}
	return ""
}

// SelectedPatterns returns the pattern list of the selected burst, nil
// when no burst is selected.
func (s *SymbolTables) SelectedPatterns() []string {
	if b, ok := s.Bursts[s.SelectedBurst]; ok {
		return b.Patterns
	}
	return nil
}

// ResolveGroup expands a vector-row key into its ordered signal list.
// Group names are tried with the selected domain prefix first, then
// bare; a plain signal name resolves to itself.
func (s *SymbolTables) ResolveGroup(key string) []string {
	if domain := s.SelectedDomain(); domain != "" {
		if sigs, ok := s.Groups[domain+"."+key]; ok {
			return sigs
		}
	}
	if sigs, ok := s.Groups[key]; ok {
		return sigs
	}
	if _, ok := s.Signals[key]; ok {
		return []string{key}
	}
	return nil
}

// GroupSignalType returns the direction used to classify a waveform
// definition: the direction of the signal itself, or of the first group
// member when the key names a group.
func (s *SymbolTables) GroupSignalType(key string) string {
	sigs := s.ResolveGroup(key)
	if len(sigs) == 0 {
		return ""
	}
	return s.Signals[sigs[0]]
}

// UsedSignals returns the signals of the pattern-header keys first, then
// those of the groups in the selected burst's domain (every group when
// the domain is the default one), each signal once. It falls back to
// every declared signal when neither yields any.
func (s *SymbolTables) UsedSignals() []string {
	domain := s.SelectedDomain()
	seen := make(map[string]bool)
	var used []string

	add := func(sig string) {
		if !seen[sig] {
			seen[sig] = true
			used = append(used, sig)
		}
	}

	for _, key := range s.PatternHeader {
		for _, sig := range s.ResolveGroup(key) {
			add(sig)
		}
	}
	names := make([]string, 0, len(s.Groups))
	for name := range s.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if domain != "" && !strings.HasPrefix(name, domain+".") {
			continue
		}
		for _, sig := range s.Groups[name] {
			add(sig)
		}
	}
	if len(used) == 0 {
		for _, sig := range s.SignalOrder {
			add(sig)
		}
	}
	return used
}
