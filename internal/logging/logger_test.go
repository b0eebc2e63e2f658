package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// entries decodes one JSON object per logged line.
func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestSubsystemAndFields(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, "debug")
	hub := root.Sub("gateway").Sub("hub").With("connId", "c-42")

	hub.Info().Str("phone", "+111").Msg("client joined")
	root.Debug().Msg("root line")

	lines := entries(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "client joined", lines[0]["message"])
	assert.Equal(t, "hub", lines[0]["subsystem"], "innermost subsystem wins")
	assert.Equal(t, "c-42", lines[0]["connId"])
	assert.Equal(t, "+111", lines[0]["phone"])
	assert.Contains(t, lines[0], "time")
	assert.NotContains(t, lines[1], "subsystem")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug().Msg("debug")
	log.Info().Msg("info")
	log.Warn().Msg("warn")
	log.Error().Msg("error")

	lines := entries(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "error", lines[1]["level"])
}

func TestSilentDropsEverything(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "silent")
	log.Error().Msg("nope")
	zl := log.Zerolog()
	zl.Warn().Msg("nope")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"silent":  zerolog.Disabled,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"panic":   zerolog.InfoLevel,
		"loud":    zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestOpenTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "supportim.log")
	log, closer, err := Open(Options{Level: "info", Style: "json", File: path})
	require.NoError(t, err)

	log.Sub("store").Info().Str("backend", "sqlite").Msg("store opened")
	log.Debug().Msg("filtered")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := entries(t, bytes.NewBuffer(data))
	require.Len(t, lines, 1)
	assert.Equal(t, "sqlite", lines[0]["backend"])
	assert.Equal(t, "store", lines[0]["subsystem"])
}

func TestOpenConsoleOnly(t *testing.T) {
	for _, style := range []string{"pretty", "compact", "json", ""} {
		log, closer, err := Open(Options{Level: "silent", Style: style})
		require.NoError(t, err, style)
		require.NotNil(t, log)
		assert.NoError(t, closer.Close())
	}
}
