package stil

import "fmt"

// DefaultInstruction is emitted for rows that carry no explicit
// micro-instruction.
const DefaultInstruction = "ADV"

// vctInstructionWidth is the fixed width of the instruction field in a
// VCT vector row.
const vctInstructionWidth = 14

// defaultInstructionMapping maps STIL statement names to the VCT
// mnemonics the target tester consumes. Names without an entry pass
// through unchanged.
func defaultInstructionMapping() map[string]string {
	return map[string]string{
		"Stop":          "HALT",
		"Goto":          "JUMP",
		"Loop":          "LI", // a Loop holding a single V collapses to RPT
		"MatchLoop":     "MBGN",
		"Call":          "CALL",
		"Return":        "RET",
		"IddqTestPoint": "IDDQ",
		"IDDQTestPoint": "IDDQ",
		"BreakPoint":    "BreakPoint",
		"Repeat":        "RPT",
		"LoopEnd":       "JNI",
		"MBGN":          "MBGN",
		"IMATCH":        "IMATCH",
		"MEND":          "MEND",
	}
}

// InstructionMapper translates STIL instruction names to VCT mnemonics
// and holds the deny-list of instructions that abort a conversion.
type InstructionMapper struct {
	mapping            map[string]string
	defaultInstruction string
	disabled           map[string]bool
}

// NewInstructionMapper creates a mapper with the default table and an
// empty deny-list.
func NewInstructionMapper() *InstructionMapper {
	return &InstructionMapper{
		mapping:            defaultInstructionMapping(),
		defaultInstruction: DefaultInstruction,
		disabled:           make(map[string]bool),
	}
}

// SetDefaultInstruction overrides the mnemonic used for rows without an
// instruction.
func (m *InstructionMapper) SetDefaultInstruction(instr string) {
	m.defaultInstruction = instr
}

// SetDisabled replaces the deny-list.
func (m *InstructionMapper) SetDisabled(names []string) {
	m.disabled = make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			m.disabled[n] = true
		}
	}
}

// IsDisabled reports whether an instruction name is on the deny-list.
func (m *InstructionMapper) IsDisabled(name string) bool {
	return m.disabled[name]
}

// Has reports whether an instruction name is in the mapping table.
func (m *InstructionMapper) Has(name string) bool {
	_, ok := m.mapping[name]
	return ok
}

// Map translates a STIL instruction to its VCT form. Empty names and
// the bare "V" map to the default instruction with no parameter;
// unknown names pass through unchanged.
func (m *InstructionMapper) Map(stilInstr, param string) (string, string) {
	if stilInstr == "" || stilInstr == "V" {
		return m.defaultInstruction, ""
	}
	if mapped, ok := m.mapping[stilInstr]; ok {
		return mapped, param
	}
	return stilInstr, param
}

// FormatVCT renders an instruction and parameter into the fixed-width
// VCT instruction field.
func (m *InstructionMapper) FormatVCT(stilInstr, param string) string {
	instr, p := m.Map(stilInstr, param)
	s := instr
	if p != "" {
		s = instr + " " + p
	}
	return fmt.Sprintf("%-*s", vctInstructionWidth, s)
}

// LoadMappings merges extra rules into the table.
func (m *InstructionMapper) LoadMappings(mappings map[string]string) {
	for k, v := range mappings {
		m.mapping[k] = v
	}
}

// Mappings returns a copy of the current table.
func (m *InstructionMapper) Mappings() map[string]string {
	out := make(map[string]string, len(m.mapping))
	for k, v := range m.mapping {
		out[k] = v
	}
	return out
}

// Reset restores the default table and clears the deny-list.
func (m *InstructionMapper) Reset() {
	m.mapping = defaultInstructionMapping()
	m.defaultInstruction = DefaultInstruction
	m.disabled = make(map[string]bool)
}
