package stil

// VectorEntry is one signal-or-group cell of a vector row. A row is an
// ordered list of entries; the instruction fields are duplicated onto
// every entry so downstream emitters can treat each cell uniformly.
type VectorEntry struct {
	Key   string // signal or group name
	WFC   string // expanded waveform characters, one per signal in the group
	Instr string // STIL-side micro-instruction name, "" for a plain vector
	Param string // micro-instruction parameter
	Label string // label attached to this row, "" when none
	Addr  int    // vector address, assigned at emission
}

// EventHandler receives the ordered event stream produced by one
// conversion. Implementations must not assume any call happens on more
// than one goroutine; a parser emits strictly serially.
type EventHandler interface {
	// OnParseStart is called once before any other event.
	OnParseStart()
	// OnHeader reports one recognised STIL header field.
	OnHeader(key, value string)
	// OnVectorStart is called once when the first pattern block opens,
	// with the name of the selected pattern burst.
	OnVectorStart(patternBurstName string)
	// OnWaveformChange reports a W statement.
	OnWaveformChange(wftName string)
	// OnAnnotation reports an Ann block's text.
	OnAnnotation(text string)
	// OnLabel reports a label that did not attach to any row.
	OnLabel(name string)
	// OnVector reports one complete vector row.
	OnVector(entries []VectorEntry, instr, param string)
	// OnProcedureCall is emitted before any event produced by the
	// expanded procedure body. body is empty when the procedure was not
	// found, failed to parse, or nests deeper than the expansion limit.
	OnProcedureCall(procName, body string, addr int)
	// OnMicroInstruction reports a micro-only row (all channels idle).
	OnMicroInstruction(label, instr, param string, addr int)
	// OnParseComplete is the final event, carrying the emitted row count.
	OnParseComplete(vectorCount int)
	// OnLog carries informational or warning text.
	OnLog(msg string)
	// OnParseError reports a recoverable or fatal parse problem together
	// with the offending statement, truncated for display.
	OnParseError(errMsg, statement string)
}

// NopHandler is an EventHandler that ignores every event. Embed it to
// implement only the callbacks a consumer cares about.
type NopHandler struct{}

func (NopHandler) OnParseStart()                                           {}
func (NopHandler) OnHeader(key, value string)                              {}
func (NopHandler) OnVectorStart(patternBurstName string)                   {}
func (NopHandler) OnWaveformChange(wftName string)                         {}
func (NopHandler) OnAnnotation(text string)                                {}
func (NopHandler) OnLabel(name string)                                     {}
func (NopHandler) OnVector(entries []VectorEntry, instr, param string)     {}
func (NopHandler) OnProcedureCall(procName, body string, addr int)         {}
func (NopHandler) OnMicroInstruction(label, instr, param string, addr int) {}
func (NopHandler) OnParseComplete(vectorCount int)                         {}
func (NopHandler) OnLog(msg string)                                        {}
func (NopHandler) OnParseError(errMsg, statement string)                   {}
