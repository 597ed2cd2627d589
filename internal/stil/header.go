package stil

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotStil marks a file whose first content line is not a STIL
// version statement.
var ErrNotStil = errors.New("not a STIL file")

// maxScanLine bounds a single input line.
const maxScanLine = 1024 * 1024

// HeaderScanner reads a STIL file up to the first Pattern block and
// populates the symbol tables from the header sections.
type HeaderScanner struct {
	path    string
	handler EventHandler
	debug   bool
}

// NewHeaderScanner creates a scanner for one file.
func NewHeaderScanner(path string, handler EventHandler, debug bool) *HeaderScanner {
	if handler == nil {
		handler = NopHandler{}
	}
	return &HeaderScanner{path: path, handler: handler, debug: debug}
}

// Scan reads the header sections and returns populated symbol tables.
// The file itself is never modified. A missing STIL version line aborts
// the run with empty tables; an unparsable header aborts it with the
// tables holding only what was read before the failing block.
func (s *HeaderScanner) Scan() (*SymbolTables, error) {
	symbols := NewSymbolTables()

	f, err := os.Open(s.path)
	if err != nil {
		return symbols, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxScanLine)

	var headerBuf strings.Builder
	sawVersion := false
	inPattern := false

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !sawVersion {
			if trimmed == "" || strings.HasPrefix(trimmed, "//") {
				continue
			}
			if !strings.HasPrefix(trimmed, "STIL ") {
				s.handler.OnParseError("not a STIL file: first statement must be a STIL version", snippet(trimmed))
				return symbols, ErrNotStil
			}
			sawVersion = true
			continue
		}

		if strings.HasPrefix(trimmed, "Pattern ") {
			inPattern = true
			break
		}
		headerBuf.WriteString(line)
		headerBuf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return symbols, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if err := s.parseHeaderBuffer(symbols, headerBuf.String()); err != nil {
		s.handler.OnParseError(err.Error(), "")
		return symbols, err
	}

	if inPattern {
		if err := s.scanPatternHeader(symbols, scanner); err != nil {
			return symbols, err
		}
	}
	return symbols, nil
}

// scanPatternHeader reads forward inside the first pattern block until
// the first complete V statement and records its ordered key list.
func (s *HeaderScanner) scanPatternHeader(symbols *SymbolTables, scanner *bufio.Scanner) error {
	var buf []string
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		buf = append(buf, line)
		stmt := strings.TrimSpace(strings.Join(buf, "\n"))
		if !statementComplete(stmt) {
			continue
		}
		buf = buf[:0]

		_, rest := splitLeadingLabel(stmt)
		if !strings.HasPrefix(rest, "V ") && !strings.HasPrefix(rest, "V{") {
			continue
		}
		entries, err := parseVectorEntries(rest, nil)
		if err != nil {
			return nil // leave the pattern header empty; the parse pass reports it
		}
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			symbols.PatternHeader = append(symbols.PatternHeader, e.Key)
		}
		return nil
	}
	return scanner.Err()
}

// parseHeaderBuffer walks the top-level header blocks.
func (s *HeaderScanner) parseHeaderBuffer(symbols *SymbolTables, buf string) error {
	blocks, err := scanHeaderBlocks(buf)
	if err != nil {
		return fmt.Errorf("header parse failed: %w", err)
	}

	var rawTimings []*TimingData

	for _, b := range blocks {
		if len(b.tokens) == 0 {
			continue
		}
		switch b.tokens[0] {
		case "Signals":
			if err := parseSignalsBlock(symbols, b.body); err != nil {
				return err
			}
		case "SignalGroups":
			domain := ""
			if len(b.tokens) > 1 {
				domain = b.tokens[1]
			}
			if err := parseSignalGroupsBlock(symbols, domain, b.body); err != nil {
				return err
			}
		case "Timing":
			raw, err := parseTimingBlock(b.body)
			if err != nil {
				return err
			}
			rawTimings = append(rawTimings, raw...)
		case "PatternBurst":
			if len(b.tokens) < 2 {
				return fmt.Errorf("header parse failed: PatternBurst without a name")
			}
			if err := parsePatternBurstBlock(symbols, b.tokens[1], b.body); err != nil {
				return err
			}
		case "PatternExec":
			if err := parsePatternExecBlock(symbols, b.body); err != nil {
				return err
			}
		case "Header":
			if err := parseHeaderInfoBlock(symbols, b.body, s.handler); err != nil {
				return err
			}
		case "Procedures":
			if err := parseDefinitionsBlock(symbols.Procedures, b.body); err != nil {
				return err
			}
		case "MacroDefs":
			if err := parseDefinitionsBlock(symbols.MacroDefs, b.body); err != nil {
				return err
			}
		}
	}

	for _, td := range rawTimings {
		table := symbols.Timing(td.WFT)
		records := td.Split()
		td.Analyze(symbols.GroupSignalType(td.Signal), s.handler)
		table.List = append(table.List, records...)
	}
	return nil
}

func parseSignalsBlock(symbols *SymbolTables, body string) error {
	stmts, err := splitStatements(body)
	if err != nil {
		return fmt.Errorf("Signals block parse failed: %w", err)
	}
	for _, stmt := range stmts {
		fields := strings.Fields(stmt)
		if len(fields) < 2 {
			continue
		}
		name := strings.Trim(fields[0], `"`)
		symbols.AddSignal(name, fields[1])
	}
	return nil
}

func parseSignalGroupsBlock(symbols *SymbolTables, domain, body string) error {
	stmts, err := splitStatements(body)
	if err != nil {
		return fmt.Errorf("SignalGroups block parse failed: %w", err)
	}
	for _, stmt := range stmts {
		name, expr, ok := strings.Cut(stmt, "=")
		if !ok {
			continue
		}
		name = strings.Trim(strings.TrimSpace(name), `"`)
		expr = strings.Trim(strings.TrimSpace(expr), "';")
		var sigs []string
		for _, part := range strings.Split(expr, "+") {
			part = strings.Trim(strings.TrimSpace(part), `"'`)
			if part != "" {
				sigs = append(sigs, part)
			}
		}
		if name == "" || len(sigs) == 0 {
			continue
		}
		if domain != "" {
			symbols.Groups[domain+"."+name] = sigs
		} else {
			symbols.Groups[name] = sigs
		}
	}
	return nil
}

// parseTimingBlock extracts the raw waveform definitions of one Timing
// block; analysis happens after every header block has been read.
func parseTimingBlock(body string) ([]*TimingData, error) {
	blocks, err := scanHeaderBlocks(body)
	if err != nil {
		return nil, fmt.Errorf("Timing block parse failed: %w", err)
	}

	var out []*TimingData
	for _, b := range blocks {
		if len(b.tokens) < 2 || b.tokens[0] != "WaveformTable" {
			continue
		}
		wft := b.tokens[1]
		period := ""

		inner, err := scanHeaderBlocks(b.body)
		if err != nil {
			return nil, fmt.Errorf("WaveformTable %s parse failed: %w", wft, err)
		}
		for _, ib := range inner {
			if len(ib.tokens) == 0 {
				continue
			}
			switch ib.tokens[0] {
			case "Period":
				if len(ib.tokens) > 1 {
					period = strings.Trim(ib.tokens[1], "'")
				}
			case "Waveforms":
				defs, err := parseWaveformsBlock(wft, period, ib.body)
				if err != nil {
					return nil, err
				}
				out = append(out, defs...)
			}
		}
	}
	return out, nil
}

func parseWaveformsBlock(wft, period, body string) ([]*TimingData, error) {
	sigBlocks, err := scanHeaderBlocks(body)
	if err != nil {
		return nil, fmt.Errorf("Waveforms block parse failed: %w", err)
	}

	var out []*TimingData
	for _, sb := range sigBlocks {
		if len(sb.tokens) == 0 || sb.body == "" {
			continue
		}
		signal := strings.Trim(sb.tokens[0], `"`)

		wfcBlocks, err := scanHeaderBlocks(sb.body)
		if err != nil {
			return nil, fmt.Errorf("waveform %s parse failed: %w", signal, err)
		}
		for _, wb := range wfcBlocks {
			if len(wb.tokens) == 0 {
				continue
			}
			td := NewTimingData()
			td.WFT = wft
			td.Period = period
			td.Signal = signal
			td.WFC = wb.tokens[0]
			assignEdgePairs(td, wb.body)
			out = append(out, td)
		}
	}
	return out, nil
}

// assignEdgePairs fills up to four time/edge pairs from edge statements
// like "'10ns' D/U;". Event characters concatenate with the separators
// removed.
func assignEdgePairs(td *TimingData, body string) {
	stmts, err := splitStatements(body)
	if err != nil {
		return
	}
	pair := 0
	for _, stmt := range stmts {
		fields := strings.Fields(stmt)
		if len(fields) < 2 {
			continue
		}
		timeVal := strings.Trim(fields[0], "'")
		events := strings.ReplaceAll(strings.Join(fields[1:], ""), "/", "")
		if pair >= 4 {
			break
		}
		switch pair {
		case 0:
			td.T1, td.E1 = timeVal, events
		case 1:
			td.T2, td.E2 = timeVal, events
		case 2:
			td.T3, td.E3 = timeVal, events
		case 3:
			td.T4, td.E4 = timeVal, events
		}
		pair++
	}
}

func parsePatternBurstBlock(symbols *SymbolTables, name, body string) error {
	blocks, err := scanHeaderBlocks(body)
	if err != nil {
		return fmt.Errorf("PatternBurst %s parse failed: %w", name, err)
	}

	burst := &PatternBurst{Name: name}
	for _, b := range blocks {
		if len(b.tokens) == 0 {
			continue
		}
		switch b.tokens[0] {
		case "SignalGroups":
			if len(b.tokens) > 1 {
				burst.Domain = b.tokens[1]
			}
		case "PatList":
			stmts, err := splitStatements(b.body)
			if err != nil {
				return fmt.Errorf("PatList of %s parse failed: %w", name, err)
			}
			for _, stmt := range stmts {
				fields := strings.Fields(stmt)
				if len(fields) > 0 {
					burst.Patterns = append(burst.Patterns, strings.Trim(fields[0], `"`))
				}
			}
		}
	}
	symbols.Bursts[name] = burst
	if symbols.SelectedBurst == "" {
		symbols.SelectedBurst = name
	}
	return nil
}

func parsePatternExecBlock(symbols *SymbolTables, body string) error {
	blocks, err := scanHeaderBlocks(body)
	if err != nil {
		return fmt.Errorf("PatternExec parse failed: %w", err)
	}
	// The last PatternExec wins.
	for _, b := range blocks {
		if len(b.tokens) < 2 {
			continue
		}
		switch b.tokens[0] {
		case "Timing":
			symbols.SelectedTiming = b.tokens[1]
		case "PatternBurst":
			symbols.SelectedBurst = b.tokens[1]
		}
	}
	return nil
}

func parseHeaderInfoBlock(symbols *SymbolTables, body string, handler EventHandler) error {
	blocks, err := scanHeaderBlocks(body)
	if err != nil {
		return fmt.Errorf("Header block parse failed: %w", err)
	}
	for _, b := range blocks {
		if len(b.tokens) == 0 {
			continue
		}
		switch b.tokens[0] {
		case "Title", "Date", "Source":
			value := strings.Trim(strings.Join(b.tokens[1:], " "), `"`)
			symbols.Headers = append(symbols.Headers, HeaderField{Key: b.tokens[0], Value: value})
			handler.OnHeader(b.tokens[0], value)
		case "History":
			inner, err := scanHeaderBlocks(b.body)
			if err != nil {
				return fmt.Errorf("History block parse failed: %w", err)
			}
			for _, ib := range inner {
				if len(ib.tokens) > 0 && ib.tokens[0] == "Ann" {
					text := strings.TrimSpace(ib.body)
					symbols.Headers = append(symbols.Headers, HeaderField{Key: "History", Value: text})
					handler.OnHeader("History", text)
				}
			}
		}
	}
	return nil
}

// parseDefinitionsBlock stores each named sub-block's body verbatim.
func parseDefinitionsBlock(defs map[string]string, body string) error {
	blocks, err := scanHeaderBlocks(body)
	if err != nil {
		return fmt.Errorf("definitions block parse failed: %w", err)
	}
	for _, b := range blocks {
		if len(b.tokens) == 0 || b.body == "" {
			continue
		}
		defs[strings.Trim(b.tokens[0], `"`)] = strings.TrimSpace(b.body)
	}
	return nil
}
