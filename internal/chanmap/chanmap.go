// Package chanmap loads and validates the signal-to-channel mappings a
// VCT conversion needs. Maps come from two-column CSV or XLSX files
// (Signal, Channel); channel cells may hold comma-separated integers,
// ranges like "a-b", or a mix.
package chanmap

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxChannel is the highest channel index a tester offers.
const MaxChannel = 255

// Mapping is a signal-name to ordered-channel-set assignment.
type Mapping map[string][]int

// ParseChannelString parses a channel cell like "1,3-5,9" into a sorted
// list of channel indices. Out-of-range values are an error.
func ParseChannelString(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var channels []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid channel range %q", part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid channel range %q", part)
			}
			if end < start {
				return nil, fmt.Errorf("invalid channel range %q", part)
			}
			for ch := start; ch <= end; ch++ {
				channels = append(channels, ch)
			}
		} else {
			ch, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid channel %q", part)
			}
			channels = append(channels, ch)
		}
	}

	for _, ch := range channels {
		if ch < 0 || ch > MaxChannel {
			return nil, fmt.Errorf("channel %d out of range (0-%d)", ch, MaxChannel)
		}
	}
	sort.Ints(channels)
	return channels, nil
}

// FormatChannels renders a channel list back into the cell format,
// compressing runs of three or more into "a-b".
func FormatChannels(channels []int) string {
	if len(channels) == 0 {
		return ""
	}
	sorted := append([]int{}, channels...)
	sort.Ints(sorted)

	var parts []string
	start, end := sorted[0], sorted[0]
	flush := func() {
		switch {
		case start == end:
			parts = append(parts, strconv.Itoa(start))
		case end-start == 1:
			parts = append(parts, fmt.Sprintf("%d,%d", start, end))
		default:
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
	}
	for _, ch := range sorted[1:] {
		if ch == end+1 {
			end = ch
			continue
		}
		flush()
		start, end = ch, ch
	}
	flush()
	return strings.Join(parts, ",")
}

// Validate rejects duplicate channel assignments across distinct
// signals and out-of-range channels.
func Validate(m Mapping) error {
	owner := make(map[int]string)

	signals := make([]string, 0, len(m))
	for signal := range m {
		signals = append(signals, signal)
	}
	sort.Strings(signals)

	for _, signal := range signals {
		for _, ch := range m[signal] {
			if ch < 0 || ch > MaxChannel {
				return fmt.Errorf("signal %q: channel %d out of range (0-%d)", signal, ch, MaxChannel)
			}
			if other, taken := owner[ch]; taken && other != signal {
				return fmt.Errorf("channel %d assigned to both %q and %q", ch, other, signal)
			}
			owner[ch] = signal
		}
	}
	return nil
}

// Load reads a mapping file, dispatching on the extension (.csv, .xlsx)
// and validating the result.
func Load(path string) (Mapping, error) {
	var (
		m   Mapping
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		m, err = LoadCSV(path)
	case ".xlsx":
		m, err = LoadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported channel-map format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadCSV reads a two-column Signal,Channel CSV file. A first row whose
// signal cell reads "signal" is treated as a header.
func LoadCSV(path string) (Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel map: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read channel map: %w", err)
	}
	return fromRows(records)
}

// LoadXLSX reads the first sheet of an XLSX workbook as a two-column
// Signal,Channel table.
func LoadXLSX(path string) (Mapping, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel map: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("channel map workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read channel map sheet: %w", err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (Mapping, error) {
	m := make(Mapping)
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		signal := strings.TrimSpace(row[0])
		cell := strings.TrimSpace(row[1])
		if signal == "" {
			continue
		}
		if i == 0 && strings.EqualFold(signal, "signal") {
			continue
		}
		channels, err := ParseChannelString(cell)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, signal, err)
		}
		if len(channels) == 0 {
			continue
		}
		m[signal] = append(m[signal], channels...)
		sort.Ints(m[signal])
	}
	return m, nil
}

// SaveCSV writes the mapping back out in the two-column format, signals
// sorted for a stable file.
func SaveCSV(path string, m Mapping) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create channel map: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Signal", "Channel"}); err != nil {
		return fmt.Errorf("failed to write channel map: %w", err)
	}
	signals := make([]string, 0, len(m))
	for signal := range m {
		signals = append(signals, signal)
	}
	sort.Strings(signals)
	for _, signal := range signals {
		if err := w.Write([]string{signal, FormatChannels(m[signal])}); err != nil {
			return fmt.Errorf("failed to write channel map: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// SaveXLSX writes the mapping into a one-sheet workbook.
func SaveXLSX(path string, m Mapping) error {
	wb := excelize.NewFile()
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if err := wb.SetSheetRow(sheet, "A1", &[]string{"Signal", "Channel"}); err != nil {
		return fmt.Errorf("failed to write channel map: %w", err)
	}

	signals := make([]string, 0, len(m))
	for signal := range m {
		signals = append(signals, signal)
	}
	sort.Strings(signals)
	for i, signal := range signals {
		cell := fmt.Sprintf("A%d", i+2)
		if err := wb.SetSheetRow(sheet, cell, &[]string{signal, FormatChannels(m[signal])}); err != nil {
			return fmt.Errorf("failed to write channel map: %w", err)
		}
	}
	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save channel map: %w", err)
	}
	return nil
}
