package vct

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zfoxbaby/stil-dev/internal/stil"
)

// maxRradrSlots is the number of pre-configured timing tables the
// target tester offers.
const maxRradrSlots = 8

// ErrRradrOverflow marks a file that needs more timing tables than the
// tester has RRADR slots.
var ErrRradrOverflow = errors.New("RRADR slot overflow")

// TimingFormatter converts analysed waveform tables into the VCT/REX
// textual timing representation (RRADR/REP_RATE/CLOCKn/STROBEn/FORMAT
// lines over compressed channel ranges).
type TimingFormatter struct {
	groups           map[string][]string
	signalToChannels map[string][]int
	conv             *stil.TimeUnitConverter

	wftToRradr map[string]int
	nextRradr  int
}

// NewTimingFormatter creates a formatter; signal groups and the channel
// mapping are set before formatting.
func NewTimingFormatter() *TimingFormatter {
	return &TimingFormatter{
		groups:           make(map[string][]string),
		signalToChannels: make(map[string][]int),
		conv:             stil.NewTimeUnitConverter("ns"),
		wftToRradr:       make(map[string]int),
	}
}

// SetSignalGroups installs the group-to-signal mapping.
func (f *TimingFormatter) SetSignalGroups(groups map[string][]string) {
	f.groups = groups
}

// SetChannelMapping installs the signal-to-channel mapping.
func (f *TimingFormatter) SetChannelMapping(mapping map[string][]int) {
	f.signalToChannels = mapping
}

// RradrNumber returns the RRADR slot of a waveform table, allocating
// slots first-come, first-served. Running past the last slot is an
// error, not a silent truncation.
func (f *TimingFormatter) RradrNumber(wftName string) (int, error) {
	if n, ok := f.wftToRradr[wftName]; ok {
		return n, nil
	}
	if f.nextRradr >= maxRradrSlots {
		return 0, fmt.Errorf("%w: no slot left for waveform table %q", ErrRradrOverflow, wftName)
	}
	f.wftToRradr[wftName] = f.nextRradr
	f.nextRradr++
	return f.wftToRradr[wftName], nil
}

// RradrFor returns the already-allocated slot of a waveform table, 0
// when the table was never formatted.
func (f *TimingFormatter) RradrFor(wftName string) int {
	return f.wftToRradr[wftName]
}

// WftMapping returns a copy of the allocated table-to-slot mapping.
func (f *TimingFormatter) WftMapping() map[string]int {
	out := make(map[string]int, len(f.wftToRradr))
	for k, v := range f.wftToRradr {
		out[k] = v
	}
	return out
}

// ChannelsForSignal returns the sorted channel set of a signal or
// signal group.
func (f *TimingFormatter) ChannelsForSignal(name string) []int {
	var channels []int
	if sigs, ok := f.groups[name]; ok {
		for _, sig := range sigs {
			channels = append(channels, f.signalToChannels[sig]...)
		}
	} else {
		channels = append(channels, f.signalToChannels[name]...)
	}
	if len(channels) == 0 {
		return nil
	}
	sort.Ints(channels)
	out := channels[:1]
	for _, c := range channels[1:] {
		if c != out[len(out)-1] {
			out = append(out, c)
		}
	}
	return out
}

// MiddleEdges extracts the two "middle" edge times of a definition as
// integer nanoseconds: the only edge when one is present, the first two
// when two are, and the second and third otherwise. ok is false when
// the definition has no usable edge.
func (f *TimingFormatter) MiddleEdges(td *stil.TimingData) (edge1, edge2 int, hasSecond, ok bool) {
	var edges []string
	if td.T1 != "" && td.E1 != "" {
		edges = append(edges, td.T1)
	}
	if td.T2 != "" && td.E2 != "" {
		edges = append(edges, td.T2)
	}
	if td.T3 != "" && td.E3 != "" {
		edges = append(edges, td.T3)
	}
	if td.T4 != "" && td.E4 != "" {
		edges = append(edges, td.T4)
	}

	toInt := func(s string) (int, bool) {
		v, err := f.conv.ConvertStringToInt(s, "")
		return v, err == nil
	}

	switch len(edges) {
	case 0:
		return 0, 0, false, false
	case 1:
		v, good := toInt(edges[0])
		return v, 0, false, good
	case 2:
		v1, g1 := toInt(edges[0])
		v2, g2 := toInt(edges[1])
		return v1, v2, true, g1 && g2
	default:
		v1, g1 := toInt(edges[1])
		v2, g2 := toInt(edges[2])
		return v1, v2, true, g1 && g2
	}
}

// FormatChannels compresses a channel list: runs of three or more use
// "start-end", exactly two use "start,end", singles stay bare.
func (f *TimingFormatter) FormatChannels(channels []int) string {
	if len(channels) == 0 {
		return "<>"
	}
	sorted := append([]int{}, channels...)
	sort.Ints(sorted)
	uniq := sorted[:1]
	for _, c := range sorted[1:] {
		if c != uniq[len(uniq)-1] {
			uniq = append(uniq, c)
		}
	}

	var parts []string
	start, end := uniq[0], uniq[0]
	flush := func() {
		switch {
		case start == end:
			parts = append(parts, fmt.Sprintf("%d", start))
		case end-start == 1:
			parts = append(parts, fmt.Sprintf("%d,%d", start, end))
		default:
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
	}
	for _, c := range uniq[1:] {
		if c == end+1 {
			end = c
			continue
		}
		flush()
		start, end = c, c
	}
	flush()
	return "<" + strings.Join(parts, ",") + ">"
}

// FormatEdges renders the middle-edge pair.
func (f *TimingFormatter) FormatEdges(edge1, edge2 int, hasSecond bool) string {
	if !hasSecond {
		return fmt.Sprintf("%d", edge1)
	}
	return fmt.Sprintf("%d,%d", edge1, edge2)
}

// FormatTimingGroup renders one waveform table's RRADR block.
func (f *TimingFormatter) FormatTimingGroup(table *stil.WaveformTable) (string, error) {
	var lines []string

	rradr, err := f.RradrNumber(table.Name)
	if err != nil {
		return "", err
	}
	lines = append(lines, fmt.Sprintf("RRADR %d", rradr))

	if len(table.List) > 0 && table.List[0].Period != "" {
		periodNs, err := f.conv.ConvertStringToInt(table.List[0].Period, "")
		if err != nil {
			return "", fmt.Errorf("invalid period %q in waveform table %q: %w", table.List[0].Period, table.Name, err)
		}
		lines = append(lines, fmt.Sprintf("REP_RATE %d", periodNs))
	}
	lines = append(lines, "")

	processedClock := make(map[string]bool)
	processedStrobe := make(map[string]bool)
	var clockLines, strobeLines []string

	for _, td := range table.List {
		if td.Signal == "" {
			continue
		}
		channels := f.ChannelsForSignal(td.Signal)
		if len(channels) == 0 {
			continue
		}
		edge1, edge2, hasSecond, ok := f.MiddleEdges(td)
		if !ok {
			continue
		}
		channelStr := f.FormatChannels(channels)
		edgeStr := f.FormatEdges(edge1, edge2, hasSecond)

		switch td.IsStrobe {
		case stil.EdgeBidir:
			if !processedClock[td.Signal] && td.EdgeFormat != "" {
				processedClock[td.Signal] = true
				clockLines = append(clockLines, fmt.Sprintf("CLOCK%d %s %s", rradr, channelStr, edgeStr))
				clockLines = append(clockLines, fmt.Sprintf("FORMAT %s %s", channelStr, td.EdgeFormat))
			}
			if !processedStrobe[td.Signal] {
				processedStrobe[td.Signal] = true
				strobeLines = append(strobeLines, fmt.Sprintf("STROBE%d %s %s", rradr, channelStr, edgeStr))
			}
		case stil.EdgeStrobe:
			if !processedStrobe[td.Signal] {
				processedStrobe[td.Signal] = true
				strobeLines = append(strobeLines, fmt.Sprintf("STROBE%d %s %s", rradr, channelStr, edgeStr))
			}
		case stil.EdgeDriver:
			if !processedClock[td.Signal] {
				processedClock[td.Signal] = true
				clockLines = append(clockLines, fmt.Sprintf("CLOCK%d %s %s", rradr, channelStr, edgeStr))
				if td.EdgeFormat != "" {
					clockLines = append(clockLines, fmt.Sprintf("FORMAT %s %s", channelStr, td.EdgeFormat))
				}
			}
		}
	}

	lines = append(lines, clockLines...)
	lines = append(lines, strobeLines...)
	return strings.Join(lines, "\n"), nil
}

// FormatAllTimings renders every waveform table, reallocating RRADR
// slots from zero in enumeration order.
func (f *TimingFormatter) FormatAllTimings(tables []*stil.WaveformTable) (string, error) {
	f.wftToRradr = make(map[string]int)
	f.nextRradr = 0

	var parts []string
	for _, table := range tables {
		formatted, err := f.FormatTimingGroup(table)
		if err != nil {
			return "", err
		}
		parts = append(parts, formatted)
	}
	return strings.Join(parts, "\n\n"), nil
}
