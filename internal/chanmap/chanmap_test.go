package chanmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []int
		wantErr  bool
	}{
		{name: "single", input: "3", expected: []int{3}},
		{name: "list", input: "1,2,3", expected: []int{1, 2, 3}},
		{name: "range", input: "3-6", expected: []int{3, 4, 5, 6}},
		{name: "mixed", input: "0, 3-5, 9", expected: []int{0, 3, 4, 5, 9}},
		{name: "unsorted is sorted", input: "9,1", expected: []int{1, 9}},
		{name: "empty", input: "", expected: nil},
		{name: "out of range", input: "256", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "reversed range", input: "5-3", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannelString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatChannels(t *testing.T) {
	assert.Equal(t, "3-7", FormatChannels([]int{3, 4, 5, 6, 7}))
	assert.Equal(t, "3,4", FormatChannels([]int{3, 4}))
	assert.Equal(t, "3", FormatChannels([]int{3}))
	assert.Equal(t, "3-5,7,8", FormatChannels([]int{3, 4, 5, 7, 8}))
	assert.Equal(t, "", FormatChannels(nil))
}

func TestValidate(t *testing.T) {
	ok := Mapping{"clk": {0}, "data": {1, 2}}
	assert.NoError(t, Validate(ok))

	dup := Mapping{"clk": {0}, "data": {0}}
	err := Validate(dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 0")

	oob := Mapping{"clk": {300}}
	assert.Error(t, Validate(oob))
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.csv")
	content := "Signal,Channel\nclk,0\ndata,\"1,2\"\nbus,4-7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, m["clk"])
	assert.Equal(t, []int{1, 2}, m["data"])
	assert.Equal(t, []int{4, 5, 6, 7}, m["bus"])
}

func TestLoadCSV_DuplicateRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.csv")
	content := "Signal,Channel\nclk,0\ndata,0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("map.txt")
	assert.Error(t, err)
}

func TestSaveAndReloadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.csv")
	original := Mapping{"clk": {0}, "bus": {4, 5, 6, 7}}
	require.NoError(t, SaveCSV(path, original))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, reloaded)
}

func TestSaveAndReloadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.xlsx")
	original := Mapping{"clk": {0}, "data": {1, 2}}
	require.NoError(t, SaveXLSX(path, original))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, reloaded)
}
