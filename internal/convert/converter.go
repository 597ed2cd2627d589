// Package convert wires the STIL parser and the VCT emitter into one
// conversion with a programmatic surface: read the header overview,
// install a channel mapping, convert, stop.
package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zfoxbaby/stil-dev/internal/chanmap"
	"github.com/zfoxbaby/stil-dev/internal/stil"
	"github.com/zfoxbaby/stil-dev/internal/vct"
)

// Level classifies sink events the way callers colour log lines.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one observable moment of a conversion. The core never
// prints or logs on its own; it only emits these.
type Event struct {
	Level     Level
	Message   string
	Statement string
	RunID     string
}

// Sink receives conversion events.
type Sink func(Event)

// Status is the outcome of a conversion.
type Status int

const (
	StatusOK Status = iota
	StatusCancelled
	StatusFailed
)

// RemapResult reports how an old channel mapping reconciled against a
// re-read signal list.
type RemapResult struct {
	OK         bool
	NewSignals []string
	NewMapping chanmap.Mapping
	Mapped     []string
	Unmapped   []string
	Removed    []string
	Err        string
}

// Converter drives one STIL-to-VCT conversion. Instances are not
// shared between concurrent conversions; an orchestrator creates one
// per file.
type Converter struct {
	inputPath  string
	outputPath string
	sink       Sink
	debug      bool
	runID      string

	symbols    *stil.SymbolTables
	chanMap    chanmap.Mapping
	charMapper *stil.VectorCharMapper
	instrMap   *stil.InstructionMapper

	parser        atomic.Pointer[stil.PatternStreamParser]
	stopRequested atomic.Bool
}

// New creates a converter for one input/output pair.
func New(inputPath, outputPath string, sink Sink, debug bool) *Converter {
	return &Converter{
		inputPath:  inputPath,
		outputPath: outputPath,
		sink:       sink,
		debug:      debug,
		runID:      uuid.NewString(),
		chanMap:    make(chanmap.Mapping),
		charMapper: stil.NewVectorCharMapper(),
		instrMap:   stil.NewInstructionMapper(),
	}
}

// RunID identifies this conversion in sink events and logs.
func (c *Converter) RunID() string { return c.runID }

// CharMapper exposes the vector character map for caller extension.
func (c *Converter) CharMapper() *stil.VectorCharMapper { return c.charMapper }

// InstructionMapper exposes the micro-instruction map, including the
// deny-list.
func (c *Converter) InstructionMapper() *stil.InstructionMapper { return c.instrMap }

func (c *Converter) emit(level Level, msg, statement string) {
	if c.sink != nil {
		c.sink(Event{Level: level, Message: msg, Statement: statement, RunID: c.runID})
	}
}

// classify maps event text onto a level the way callers colour lines:
// "warning" prefixes stay yellow, everything else from the error
// callback is red.
func classify(msg string) Level {
	if strings.HasPrefix(strings.ToLower(msg), "warning") {
		return LevelWarning
	}
	return LevelError
}

// sinkHandler forwards parser diagnostics into the converter's sink.
type sinkHandler struct {
	stil.NopHandler
	c *Converter
}

func (h sinkHandler) OnParseError(errMsg, statement string) {
	h.c.emit(classify(errMsg), errMsg, statement)
}

func (h sinkHandler) OnLog(msg string) {
	h.c.emit(classify(msg), msg, "")
}

func (h sinkHandler) OnParseComplete(vectorCount int) {
	h.c.emit(LevelInfo, fmt.Sprintf("pattern parse complete, %d vectors", vectorCount), "")
}

// multiHandler fans one event stream out to several handlers.
type multiHandler []stil.EventHandler

func (m multiHandler) OnParseStart() {
	for _, h := range m {
		h.OnParseStart()
	}
}
func (m multiHandler) OnHeader(key, value string) {
	for _, h := range m {
		h.OnHeader(key, value)
	}
}
func (m multiHandler) OnVectorStart(name string) {
	for _, h := range m {
		h.OnVectorStart(name)
	}
}
func (m multiHandler) OnWaveformChange(name string) {
	for _, h := range m {
		h.OnWaveformChange(name)
	}
}
func (m multiHandler) OnAnnotation(text string) {
	for _, h := range m {
		h.OnAnnotation(text)
	}
}
func (m multiHandler) OnLabel(name string) {
	for _, h := range m {
		h.OnLabel(name)
	}
}
func (m multiHandler) OnVector(entries []stil.VectorEntry, instr, param string) {
	for _, h := range m {
		h.OnVector(entries, instr, param)
	}
}
func (m multiHandler) OnProcedureCall(name, body string, addr int) {
	for _, h := range m {
		h.OnProcedureCall(name, body, addr)
	}
}
func (m multiHandler) OnMicroInstruction(label, instr, param string, addr int) {
	for _, h := range m {
		h.OnMicroInstruction(label, instr, param, addr)
	}
}
func (m multiHandler) OnParseComplete(count int) {
	for _, h := range m {
		h.OnParseComplete(count)
	}
}
func (m multiHandler) OnLog(msg string) {
	for _, h := range m {
		h.OnLog(msg)
	}
}
func (m multiHandler) OnParseError(errMsg, statement string) {
	for _, h := range m {
		h.OnParseError(errMsg, statement)
	}
}

// ReadStilOverview parses the header only, populating the symbol
// tables, and returns the signal names the selected burst uses.
func (c *Converter) ReadStilOverview(printLog bool) ([]string, error) {
	scanner := stil.NewHeaderScanner(c.inputPath, sinkHandler{c: c}, c.debug)
	symbols, err := scanner.Scan()
	if err != nil {
		return nil, err
	}
	c.symbols = symbols

	used := symbols.UsedSignals()
	if printLog {
		c.emit(LevelInfo, fmt.Sprintf("found %d signals, %d groups, %d waveform tables",
			len(symbols.Signals), len(symbols.Groups), len(symbols.Timings)), "")
	}
	return used, nil
}

// SetChannelMapping installs the signal-to-channel mapping the emitter
// consults for every row.
func (c *Converter) SetChannelMapping(m chanmap.Mapping) {
	c.chanMap = m
}

// GetChannelMapping returns the current mapping.
func (c *Converter) GetChannelMapping() chanmap.Mapping {
	return c.chanMap
}

// RefreshSignalsAndRemap re-reads the source's signal list and
// reconciles an old mapping against it: signals still present keep
// their channels, new signals surface as unmapped, vanished ones as
// removed.
func (c *Converter) RefreshSignalsAndRemap(oldMapping chanmap.Mapping) *RemapResult {
	result := &RemapResult{NewMapping: make(chanmap.Mapping)}

	newSignals, err := c.ReadStilOverview(false)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	if len(newSignals) == 0 {
		result.Err = "no signals found in the STIL file"
		return result
	}
	result.NewSignals = newSignals

	seen := make(map[string]bool, len(newSignals))
	for _, signal := range newSignals {
		seen[signal] = true
		if channels, ok := oldMapping[signal]; ok {
			result.NewMapping[signal] = channels
			result.Mapped = append(result.Mapped, signal)
		} else {
			result.Unmapped = append(result.Unmapped, signal)
		}
	}
	for signal := range oldMapping {
		if !seen[signal] {
			result.Removed = append(result.Removed, signal)
		}
	}

	c.chanMap = result.NewMapping
	result.OK = true
	return result
}

// Stop requests cancellation. The parser finishes the statement in
// flight; the VCT file is closed without its trailer.
func (c *Converter) Stop() {
	c.stopRequested.Store(true)
	if p := c.parser.Load(); p != nil {
		p.Stop()
	}
}

// RexPath returns the REX output path: the VCT path with its extension
// replaced.
func (c *Converter) RexPath() string {
	ext := filepath.Ext(c.outputPath)
	return strings.TrimSuffix(c.outputPath, ext) + ".rex"
}

// Convert runs the conversion end to end: header, timing and DRVR
// sections, the REX file, then the streamed vector section.
func (c *Converter) Convert() (Status, error) {
	if c.symbols == nil {
		if _, err := c.ReadStilOverview(false); err != nil {
			return StatusFailed, err
		}
	}
	if c.stopRequested.Load() {
		return StatusCancelled, nil
	}

	info, err := os.Stat(c.inputPath)
	if err != nil {
		c.emit(LevelError, fmt.Sprintf("cannot stat input: %v", err), "")
		return StatusFailed, err
	}
	fileSize := info.Size()

	out, err := os.Create(c.outputPath)
	if err != nil {
		c.emit(LevelError, fmt.Sprintf("cannot create output: %v", err), "")
		return StatusFailed, err
	}
	defer out.Close()

	formatter := vct.NewTimingFormatter()
	emitter := vct.NewEmitter(c.inputPath, out, c.symbols, c.chanMap, c.charMapper, c.instrMap, formatter)
	emitter.Progress = func(msg string) { c.emit(LevelInfo, msg, "") }

	c.emit(LevelInfo, "writing VCT header...", "")
	emitter.WriteHeader(time.Now())

	c.emit(LevelInfo, "writing timing definitions...", "")
	if err := emitter.WriteTimingSection(); err != nil {
		c.emit(LevelError, fmt.Sprintf("timing translation failed: %v", err), "")
		return StatusFailed, err
	}

	if err := c.writeRexFile(emitter); err != nil {
		return StatusFailed, err
	}

	c.emit(LevelInfo, "writing DRVR assignments...", "")
	emitter.WriteDRVRSection()

	c.emit(LevelInfo, "writing vector data...", "")
	emitter.BeginVectorSection()

	parser := stil.NewPatternStreamParser(c.inputPath, multiHandler{emitter, sinkHandler{c: c}}, c.symbols, c.instrMap, c.debug)
	c.parser.Store(parser)
	if c.stopRequested.Load() {
		parser.Stop()
	}
	emitter.ReadProgress = func() (int64, int64) { return parser.ReadSize(), fileSize }

	count, parseErr := parser.ParsePatterns()
	clean := parseErr == nil && !parser.Stopped()
	emitter.EndVectorSection(clean)

	if emitter.Err() != nil {
		c.emit(LevelError, fmt.Sprintf("write failed: %v", emitter.Err()), "")
		return StatusFailed, emitter.Err()
	}
	if parser.Stopped() {
		c.emit(LevelInfo, fmt.Sprintf("conversion stopped after %d vectors", count), "")
		return StatusCancelled, nil
	}
	if parseErr != nil {
		return StatusFailed, parseErr
	}

	c.emit(LevelInfo, fmt.Sprintf("VCT file complete: %s (%d vectors)", c.outputPath, count), "")
	return StatusOK, nil
}

func (c *Converter) writeRexFile(emitter *vct.Emitter) error {
	content, err := emitter.RexContent()
	if err != nil {
		c.emit(LevelError, fmt.Sprintf("REX generation failed: %v", err), "")
		return err
	}
	if content == "" {
		c.emit(LevelWarning, "warning: no timing information, skipping .rex generation", "")
		return nil
	}
	rexPath := c.RexPath()
	if err := os.WriteFile(rexPath, []byte(content+"\n"), 0o644); err != nil {
		c.emit(LevelError, fmt.Sprintf("REX generation failed: %v", err), "")
		return err
	}
	c.emit(LevelInfo, fmt.Sprintf("REX file complete: %s", rexPath), "")
	return nil
}
