package vct

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/zfoxbaby/stil-dev/internal/stil"
)

// ChannelCount is the fixed channel width of a VCT vector row.
const ChannelCount = 256

// rowFlushInterval bounds the visible lag of the progress callback on
// large files.
const rowFlushInterval = 10000

// replacementKey addresses the WFC replacement of one signal under one
// waveform table.
type replacementKey struct {
	wft    string
	signal string
	wfc    string
}

// Emitter renders the event stream of one conversion into a VCT file.
// It owns the output writer for the duration of the conversion.
type Emitter struct {
	sourcePath string
	out        *bufio.Writer
	symbols    *stil.SymbolTables
	chanMap    map[string][]int
	charMapper *stil.VectorCharMapper
	instrMap   *stil.InstructionMapper
	formatter  *TimingFormatter

	// Progress, when set, receives human-readable progress text.
	Progress func(msg string)
	// ReadProgress, when set, reports input bytes consumed and total.
	ReadProgress func() (read, total int64)

	currentWFT     string
	replacementMap map[replacementKey]string
	rowCount       int
	err            error
}

// NewEmitter creates an emitter writing to w.
func NewEmitter(sourcePath string, w io.Writer, symbols *stil.SymbolTables, chanMap map[string][]int,
	charMapper *stil.VectorCharMapper, instrMap *stil.InstructionMapper, formatter *TimingFormatter) *Emitter {
	if charMapper == nil {
		charMapper = stil.NewVectorCharMapper()
	}
	if instrMap == nil {
		instrMap = stil.NewInstructionMapper()
	}
	if formatter == nil {
		formatter = NewTimingFormatter()
	}
	return &Emitter{
		sourcePath: sourcePath,
		out:        bufio.NewWriter(w),
		symbols:    symbols,
		chanMap:    chanMap,
		charMapper: charMapper,
		instrMap:   instrMap,
		formatter:  formatter,
	}
}

// Err returns the first write error, if any.
func (e *Emitter) Err() error { return e.err }

// Flush flushes buffered output.
func (e *Emitter) Flush() error {
	if err := e.out.Flush(); err != nil && e.err == nil {
		e.err = err
	}
	return e.err
}

// RowCount returns the vector rows written so far.
func (e *Emitter) RowCount() int { return e.rowCount }

func (e *Emitter) write(s string) {
	if e.err != nil {
		return
	}
	if _, err := e.out.WriteString(s); err != nil {
		e.err = err
	}
}

func (e *Emitter) writeLine(s string) {
	e.write(s)
	e.write("\n")
}

func (e *Emitter) progressf(format string, args ...any) {
	if e.Progress != nil {
		e.Progress(fmt.Sprintf(format, args...))
	}
}

// ========================== file sections ==========================

// WriteHeader writes the comment banner and the recognised STIL header
// fields.
func (e *Emitter) WriteHeader(now time.Time) {
	source := filepath.Base(e.sourcePath)
	e.writeLine(";")
	e.writeLine(";  HTOL vector file created by the stil-dev translator")
	e.writeLine(fmt.Sprintf(";  from the source file %s", source))
	e.writeLine(fmt.Sprintf(";  translated %s", now.Format("Mon Jan 2 15:04:05 2006")))
	e.writeLine(";")
	e.writeLine("")
	for _, h := range e.symbols.Headers {
		e.writeLine(fmt.Sprintf(";  %s: %s", h.Key, h.Value))
	}
}

// WriteTimingSection writes the timing banner plus the translated
// CLOCK/STROBE/FORMAT block.
func (e *Emitter) WriteTimingSection() error {
	if len(e.symbols.Timings) == 0 {
		return nil
	}

	e.writeLine(";")
	e.writeLine(";    Timing definitions:")
	e.writeLine(";")

	for _, table := range e.symbols.Timings {
		e.writeLine(fmt.Sprintf(";  Timing [%s] (%d entries)", table.Name, len(table.List)))
		for _, td := range table.List {
			if td.VectorReplacement == "" {
				continue
			}
			line := fmt.Sprintf(";    %s, %s, %s=%s, %s, %s", td.Signal, td.Period, td.WFC, td.VectorReplacement, td.T1, td.E1)
			if td.T2 != "" {
				line += fmt.Sprintf(", %s, %s", td.T2, td.E2)
			}
			if td.T3 != "" {
				line += fmt.Sprintf(", %s, %s", td.T3, td.E3)
			}
			if td.T4 != "" {
				line += fmt.Sprintf(", %s, %s", td.T4, td.E4)
			}
			e.writeLine(line)
		}
	}
	e.writeLine(";")

	e.formatter.SetSignalGroups(e.symbols.Groups)
	e.formatter.SetChannelMapping(e.chanMap)
	content, err := e.formatter.FormatAllTimings(e.symbols.Timings)
	if err != nil {
		return err
	}
	if content != "" {
		e.writeLine(";    Converted timing maybe not correct, Please check the timing definitions:")
		e.writeLine(";    DUD/UDU -> P/N; UD/DU -> 01 DNRZ; D -> 0; U -> 1; P -> Q; Other -> Other")
		e.writeLine(";")
		for _, line := range strings.Split(content, "\n") {
			e.writeLine(";  " + line)
		}
	}
	e.writeLine("")
	return nil
}

// RexContent renders the REX file body (the timing block only).
func (e *Emitter) RexContent() (string, error) {
	e.formatter.SetSignalGroups(e.symbols.Groups)
	e.formatter.SetChannelMapping(e.chanMap)
	return e.formatter.FormatAllTimings(e.symbols.Timings)
}

// WriteDRVRSection writes the channel-to-signal assignment list.
func (e *Emitter) WriteDRVRSection() {
	channelToSignal := make(map[int]string)
	for signal, channels := range e.chanMap {
		for _, ch := range channels {
			if ch >= 0 && ch < ChannelCount {
				channelToSignal[ch] = signal
			}
		}
	}

	e.writeLine(";")
	e.writeLine(";       driver/receiver pin to DUT signal assignments:")
	e.writeLine(";")
	for ch := 0; ch < ChannelCount; ch++ {
		if signal, ok := channelToSignal[ch]; ok {
			e.writeLine(fmt.Sprintf(";   DRVR%4d: %s", ch, signal))
		}
	}
	e.writeLine(";   DRVR  CS: '. .'")
	e.writeLine(";")
	e.writeLine("")
}

// BeginVectorSection writes the #VECTOR banner, the vertical signal
// names and the channel ruler, and builds the WFC replacement map.
func (e *Emitter) BeginVectorSection() {
	e.replacementMap = e.buildReplacementMap()
	e.currentWFT = ""
	e.rowCount = 0

	e.writeLine("#VECTOR")
	for _, line := range e.signalHeaderLines() {
		e.writeLine(line)
	}
	for _, line := range e.titleLines() {
		e.writeLine(line)
	}
}

// EndVectorSection closes the section. The trailer is only written on a
// clean end of stream.
func (e *Emitter) EndVectorSection(clean bool) {
	if clean {
		e.writeLine("#VECTOREND")
	}
	e.Flush()
}

func (e *Emitter) buildReplacementMap() map[replacementKey]string {
	m := make(map[replacementKey]string)
	for _, table := range e.symbols.Timings {
		for _, td := range table.List {
			if td.Signal == "" || td.WFC == "" {
				continue
			}
			signals := e.symbols.ResolveGroup(td.Signal)
			if len(signals) == 0 {
				signals = []string{td.Signal}
			}
			for _, signal := range signals {
				key := replacementKey{wft: table.Name, signal: signal, wfc: td.WFC}
				if td.VectorReplacement != "" {
					m[key] = td.VectorReplacement
				} else {
					m[key] = td.WFC
				}
			}
		}
	}
	return m
}

// signalHeaderLines renders the mapped signal names vertically, one
// character per line, above their channel columns.
func (e *Emitter) signalHeaderLines() []string {
	channelToSignal := make(map[int]string)
	maxNameLen := 0
	for signal, channels := range e.chanMap {
		for _, ch := range channels {
			if ch >= 0 && ch < ChannelCount {
				channelToSignal[ch] = signal
				if len(signal) > maxNameLen {
					maxNameLen = len(signal)
				}
			}
		}
	}
	if maxNameLen == 0 {
		return nil
	}

	prefix := ";" + strings.Repeat(" ", 50)
	lines := make([]string, 0, maxNameLen)
	for row := 0; row < maxNameLen; row++ {
		chars := make([]byte, ChannelCount)
		for ch := 0; ch < ChannelCount; ch++ {
			chars[ch] = ' '
			if signal, ok := channelToSignal[ch]; ok && row < len(signal) {
				chars[ch] = signal[row]
			}
		}
		lines = append(lines, prefix+string(chars))
	}
	return lines
}

// titleLines renders the flag-bit banner and the hundreds/tens/ones
// channel ruler.
func (e *Emitter) titleLines() []string {
	var hundreds, tens, ones strings.Builder
	for i := 0; i < ChannelCount; i++ {
		if i >= 100 {
			hundreds.WriteByte(byte('0' + i/100))
		} else {
			hundreds.WriteByte(' ')
		}
		if i >= 10 {
			tens.WriteByte(byte('0' + (i/10)%10))
		} else {
			tens.WriteByte(' ')
		}
		ones.WriteByte(byte('0' + i%10))
	}

	return []string{
		";                 MM GTT  C                S  T",
		";                 RC TEM  S                Y  0    " + hundreds.String(),
		";                 SM SNE  A  RESERVED      N  E C  " + tens.String(),
		";                 TP TAM  L                C  N S  " + ones.String(),
	}
}

// ========================== row formatting ==========================

const (
	flagMrstMcmp     = ".."
	flagGtstTenaTmem = "..0"
	flagSync         = "..."
	flagCS           = "1"
)

var flagReserved = strings.Repeat(".", 16)

func (e *Emitter) rowLine(microInstr string, rradr int, channels string, addr int) string {
	return fmt.Sprintf("  %s%% %s %s %s %s %d %s  %s ; 0x%06X",
		microInstr, flagMrstMcmp, flagGtstTenaTmem, flagReserved, flagSync, rradr, flagCS, channels, addr)
}

// formatVectorRow fills the 256 channel columns from the row's entries
// and returns the label, the raw instruction name and the rendered
// line.
func (e *Emitter) formatVectorRow(entries []stil.VectorEntry, rradr int) (label, instr, line string) {
	channels := make([]byte, ChannelCount)
	for i := range channels {
		channels[i] = '.'
	}

	microInstr := e.instrMap.FormatVCT("", "")
	addr := 0

	for _, entry := range entries {
		instr = entry.Instr
		microInstr = e.instrMap.FormatVCT(entry.Instr, entry.Param)
		addr = entry.Addr
		if entry.Label != "" {
			label = entry.Label
		}

		signals := e.symbols.ResolveGroup(entry.Key)
		if len(signals) == 0 {
			continue
		}
		for idx, signal := range signals {
			if idx >= len(entry.WFC) {
				continue
			}
			wfcChar := string(entry.WFC[idx])
			if mapped, ok := e.replacementMap[replacementKey{wft: e.currentWFT, signal: signal, wfc: wfcChar}]; ok {
				wfcChar = mapped
			}
			wfcChar = e.charMapper.MapChar(wfcChar)
			cell := byte('.')
			if wfcChar != "" {
				cell = wfcChar[0]
			}
			for _, ch := range e.chanMap[signal] {
				if ch >= 0 && ch < ChannelCount {
					channels[ch] = cell
				}
			}
		}
	}

	return label, instr, e.rowLine(microInstr, rradr, string(channels), addr)
}

// microOnlyLine renders a row whose channels are all idle.
func (e *Emitter) microOnlyLine(instr, param string, rradr, addr int) string {
	return e.rowLine(e.instrMap.FormatVCT(instr, param), rradr, strings.Repeat(".", ChannelCount), addr)
}

// startLines renders the fixed startup sequence ahead of the parsed
// pattern rows.
func (e *Emitter) startLines(patternBurstName string) []string {
	idle := strings.Repeat(".", ChannelCount)
	entries := []struct {
		label string
		instr string
		param string
	}{
		{"Start:", "MSSA", ""},
		{"CS_Loop:", "CALL", patternBurstName},
		{"", "JNME", "CS_Loop"},
		{"", "JF1", "Start"},
		{"", "ADV", ""},
		{"", "ADV", ""},
		{"", "HALT", ""},
		{"", "ADV", ""},
	}

	var lines []string
	for _, s := range entries {
		if s.label != "" {
			lines = append(lines, s.label)
		}
		lines = append(lines, fmt.Sprintf("  %s%% %s %s %s %s 0 %s  %s",
			e.instrMap.FormatVCT(s.instr, s.param), flagMrstMcmp, flagGtstTenaTmem, flagReserved, flagSync, flagCS, idle))
	}
	return lines
}

// labelAfterRow reports whether the label belongs below its row so a
// back-edge can reference it by forward name.
func labelAfterRow(instr string) bool {
	return strings.HasPrefix(instr, "LI") || strings.HasPrefix(instr, "MBGN")
}

// ========================== EventHandler ==========================

// The emitter ignores OnParseStart/OnHeader/OnLog/OnParseError; those
// belong to the caller's event sink.

func (e *Emitter) OnParseStart()              {}
func (e *Emitter) OnHeader(key, value string) {}
func (e *Emitter) OnLog(msg string)           {}
func (e *Emitter) OnParseError(errMsg, statement string) {
}

func (e *Emitter) OnVectorStart(patternBurstName string) {
	for _, line := range e.startLines(patternBurstName) {
		e.writeLine(line)
	}
	e.writeLine("")
}

func (e *Emitter) OnWaveformChange(wftName string) {
	e.currentWFT = wftName
}

func (e *Emitter) OnAnnotation(text string) {
	e.writeLine(";" + text)
}

func (e *Emitter) OnLabel(name string) {
	e.writeLine(name + ":")
}

func (e *Emitter) OnVector(entries []stil.VectorEntry, instr, param string) {
	rradr := e.formatter.RradrFor(e.currentWFT)
	label, rawInstr, line := e.formatVectorRow(entries, rradr)
	if labelAfterRow(rawInstr) {
		e.writeLine(line)
		if label != "" {
			e.writeLine(label + ":")
		}
	} else {
		if label != "" {
			e.writeLine(label + ":")
		}
		e.writeLine(line)
	}

	e.rowCount++
	e.reportProgress()
	if e.rowCount%rowFlushInterval == 0 {
		e.Flush()
	}
}

func (e *Emitter) OnMicroInstruction(label, instr, param string, addr int) {
	rradr := e.formatter.RradrFor(e.currentWFT)
	line := e.microOnlyLine(instr, param, rradr, addr)
	if labelAfterRow(instr) {
		e.writeLine(line)
		if label != "" {
			e.writeLine(label + ":")
		}
	} else {
		if label != "" {
			e.writeLine(label + ":")
		}
		e.writeLine(line)
	}
	e.rowCount++
	e.Flush()
}

func (e *Emitter) OnProcedureCall(procName, body string, addr int) {
	if body != "" {
		return
	}
	rradr := e.formatter.RradrFor(e.currentWFT)
	e.writeLine(e.microOnlyLine("Call", procName, rradr, addr))
	e.rowCount++
	e.progressf("warning: procedure %q not expanded, emitted a bare CALL", procName)
}

func (e *Emitter) OnParseComplete(vectorCount int) {
	e.progressf("pattern parse complete, %d vectors", vectorCount)
}

func (e *Emitter) reportProgress() {
	if e.Progress == nil {
		return
	}
	interval := 2000
	if e.rowCount > 10000 {
		interval = 5000
	}
	if e.rowCount%interval != 0 {
		return
	}
	if e.ReadProgress != nil {
		read, total := e.ReadProgress()
		if total > 0 {
			e.progressf("processed %d vector rows, %.1f%%...", e.rowCount, float64(read)/float64(total)*100)
			return
		}
	}
	e.progressf("processed %d vector rows...", e.rowCount)
}
