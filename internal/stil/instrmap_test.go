package stil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstructionMapper_Map(t *testing.T) {
	tests := []struct {
		name          string
		instr         string
		param         string
		expectedInstr string
		expectedParam string
	}{
		{name: "stop", instr: "Stop", expectedInstr: "HALT"},
		{name: "goto keeps param", instr: "Goto", param: "lbl1", expectedInstr: "JUMP", expectedParam: "lbl1"},
		{name: "loop", instr: "Loop", param: "50", expectedInstr: "LI", expectedParam: "50"},
		{name: "match loop", instr: "MatchLoop", param: "3", expectedInstr: "MBGN", expectedParam: "3"},
		{name: "call", instr: "Call", param: "sub1", expectedInstr: "CALL", expectedParam: "sub1"},
		{name: "return", instr: "Return", expectedInstr: "RET"},
		{name: "iddq", instr: "IddqTestPoint", expectedInstr: "IDDQ"},
		{name: "bare V is the default", instr: "V", expectedInstr: "ADV"},
		{name: "empty is the default", instr: "", expectedInstr: "ADV"},
		{name: "unknown passes through", instr: "LI0", param: "9", expectedInstr: "LI0", expectedParam: "9"},
	}

	m := NewInstructionMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instr, param := m.Map(tt.instr, tt.param)
			assert.Equal(t, tt.expectedInstr, instr)
			assert.Equal(t, tt.expectedParam, param)
		})
	}
}

func TestInstructionMapper_FormatVCT(t *testing.T) {
	m := NewInstructionMapper()

	assert.Equal(t, "HALT          ", m.FormatVCT("Stop", ""))
	assert.Equal(t, "RPT 50        ", m.FormatVCT("Repeat", "50"))
	assert.Len(t, m.FormatVCT("", ""), 14)
	assert.Len(t, m.FormatVCT("Goto", "some_label"), 15) // long params widen the field
}

func TestInstructionMapper_DenyList(t *testing.T) {
	m := NewInstructionMapper()
	m.SetDisabled([]string{"ScanChain", ""})

	assert.True(t, m.IsDisabled("ScanChain"))
	assert.False(t, m.IsDisabled("Stop"))
	assert.False(t, m.IsDisabled(""))
}

func TestInstructionMapper_LoadMappings(t *testing.T) {
	m := NewInstructionMapper()
	m.LoadMappings(map[string]string{"Shift": "SHFT"})

	instr, param := m.Map("Shift", "8")
	assert.Equal(t, "SHFT", instr)
	assert.Equal(t, "8", param)

	m.Reset()
	instr, _ = m.Map("Shift", "")
	assert.Equal(t, "Shift", instr)
}
