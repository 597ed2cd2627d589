package stil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeUnitConverter_ConvertStringToInt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "plain ns", input: "100ns", expected: 100},
		{name: "quoted literal", input: "'100ns'", expected: 100},
		{name: "fractional us", input: "1.5us", expected: 1500},
		{name: "picoseconds", input: "100000ps", expected: 100},
		{name: "milliseconds", input: "2ms", expected: 2000000},
		{name: "bare number defaults to ns", input: "25", expected: 25},
		{name: "scientific notation", input: "1e2ns", expected: 100},
		{name: "division expression", input: "15ns/3", expected: 5},
		{name: "uppercase unit", input: "10NS", expected: 10},
		{name: "empty string", input: "", expected: 0},
		{name: "half rounds to even down", input: "2.5ns", expected: 2},
		{name: "half rounds to even up", input: "3.5ns", expected: 4},
	}

	conv := NewTimeUnitConverter("ns")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conv.ConvertStringToInt(tt.input, "")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTimeUnitConverter_Errors(t *testing.T) {
	conv := NewTimeUnitConverter("ns")

	_, err := conv.ConvertString("fastish", "")
	assert.Error(t, err)

	_, err = conv.ConvertString("10ns/0", "")
	assert.Error(t, err)

	_, err = conv.Convert(1, "lightyears", "ns")
	assert.Error(t, err)
}

func TestTimeUnitConverter_Idempotent(t *testing.T) {
	// converting an already-converted value with the same target unit
	// must not change it
	conv := NewTimeUnitConverter("ns")

	first, err := conv.ConvertString("1.5us", "ns")
	require.NoError(t, err)
	second, err := conv.Convert(first, "ns", "ns")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTimeUnitConverter_TargetUnits(t *testing.T) {
	conv := NewTimeUnitConverter("ns")

	us, err := conv.ConvertString("1500ns", "us")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, us, 1e-9)

	ps, err := conv.ConvertString("1ns", "ps")
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, ps, 1e-9)
}
