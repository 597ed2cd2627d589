package stil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headerFixture = `STIL 1.0;

Header {
   Title "shift chain";
   Date "Mon Mar 3 10:00:00 2025";
   Source "generated";
   History {
      Ann {* rev A *}
   }
}

Signals {
   clk In;
   data In;
   q Out;
   io InOut;
   vdd Supply;
}

SignalGroups {
   all = 'clk + data + q';
}

SignalGroups grp {
   pins = 'clk + data';
}

Timing tim {
   WaveformTable wt1 {
      Period '10ns';
      Waveforms {
         clk { 01 { '0ns' D/U; } }
         q { LH { '5ns' L/H; } }
      }
   }
   WaveformTable wt2 {
      Period '20ns';
      Waveforms {
         clk { P { '0ns' D; '5ns' U; '9ns' D; } }
      }
   }
}

PatternBurst b1 {
   SignalGroups grp;
   PatList { p1; p2; }
}

PatternExec {
   Timing tim;
   PatternBurst b1;
}

Procedures {
   shift {
      V { data = 01; }
   }
}

MacroDefs {
   setup {
      V { clk = 0; }
   }
}

Pattern p1 {
   W wt1;
   V { all = 010; }
}
`

func writeTempStil(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.stil")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHeaderScanner_Scan(t *testing.T) {
	path := writeTempStil(t, headerFixture)
	symbols, err := NewHeaderScanner(path, nil, false).Scan()
	require.NoError(t, err)

	// signals
	assert.Equal(t, DirIn, symbols.Signals["clk"])
	assert.Equal(t, DirOut, symbols.Signals["q"])
	assert.Equal(t, DirInOut, symbols.Signals["io"])
	assert.Equal(t, []string{"clk", "data", "q", "io", "vdd"}, symbols.SignalOrder)

	// groups, default and named domain
	assert.Equal(t, []string{"clk", "data", "q"}, symbols.Groups["all"])
	assert.Equal(t, []string{"clk", "data"}, symbols.Groups["grp.pins"])

	// timing tables in declaration order, multi-WFC split applied
	require.Len(t, symbols.Timings, 2)
	assert.Equal(t, "wt1", symbols.Timings[0].Name)
	require.Len(t, symbols.Timings[0].List, 4) // 01 -> 2 records, LH -> 2 records
	assert.Equal(t, "0", symbols.Timings[0].List[0].WFC)
	assert.Equal(t, "0", symbols.Timings[0].List[0].VectorReplacement)
	assert.Equal(t, "1", symbols.Timings[0].List[1].VectorReplacement)
	assert.Equal(t, EdgeDriver, symbols.Timings[0].List[0].IsStrobe)
	assert.Equal(t, EdgeStrobe, symbols.Timings[0].List[2].IsStrobe)

	// pulse waveform in wt2: DUD becomes P
	require.Len(t, symbols.Timings[1].List, 1)
	assert.Equal(t, "P", symbols.Timings[1].List[0].VectorReplacement)

	// burst and exec selection
	require.Contains(t, symbols.Bursts, "b1")
	assert.Equal(t, "grp", symbols.Bursts["b1"].Domain)
	assert.Equal(t, []string{"p1", "p2"}, symbols.Bursts["b1"].Patterns)
	assert.Equal(t, "b1", symbols.SelectedBurst)
	assert.Equal(t, "tim", symbols.SelectedTiming)

	// headers in source order
	require.Len(t, symbols.Headers, 4)
	assert.Equal(t, HeaderField{Key: "Title", Value: "shift chain"}, symbols.Headers[0])
	assert.Equal(t, "History", symbols.Headers[3].Key)
	assert.Equal(t, "rev A", symbols.Headers[3].Value)

	// raw bodies
	assert.Contains(t, symbols.Procedures["shift"], "V { data = 01; }")
	assert.Contains(t, symbols.MacroDefs["setup"], "V { clk = 0; }")

	// pattern header from the first V statement
	assert.Equal(t, []string{"all"}, symbols.PatternHeader)
}

func TestHeaderScanner_NotStil(t *testing.T) {
	path := writeTempStil(t, "WGL 2.0;\nSignals { clk In; }\n")

	var errs []string
	handler := &errRecorder{errs: &errs}
	symbols, err := NewHeaderScanner(path, handler, false).Scan()

	assert.ErrorIs(t, err, ErrNotStil)
	assert.Empty(t, symbols.Signals)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "not a STIL file")
}

func TestHeaderScanner_MissingFile(t *testing.T) {
	_, err := NewHeaderScanner(filepath.Join(t.TempDir(), "nope.stil"), nil, false).Scan()
	assert.Error(t, err)
}

func TestHeaderScanner_ResolveGroup(t *testing.T) {
	path := writeTempStil(t, headerFixture)
	symbols, err := NewHeaderScanner(path, nil, false).Scan()
	require.NoError(t, err)

	// selected domain wins, bare group and plain signal still resolve
	assert.Equal(t, []string{"clk", "data"}, symbols.ResolveGroup("pins"))
	assert.Equal(t, []string{"clk", "data", "q"}, symbols.ResolveGroup("all"))
	assert.Equal(t, []string{"q"}, symbols.ResolveGroup("q"))
	assert.Nil(t, symbols.ResolveGroup("missing"))
}

func TestHeaderScanner_UsedSignals(t *testing.T) {
	path := writeTempStil(t, headerFixture)
	symbols, err := NewHeaderScanner(path, nil, false).Scan()
	require.NoError(t, err)

	used := symbols.UsedSignals()
	// the pattern header group comes first, then the selected domain's
	// groups
	assert.Equal(t, []string{"clk", "data", "q"}, used)
}
