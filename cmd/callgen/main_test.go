package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwizzleReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, "swizzle", []string{"-target", "amd64-linux", "-features", "ssse3", "-json"}))

	var rows []SwizzleRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, 16, rows[0].Lanes)
	assert.True(t, rows[0].Enabled)
	assert.False(t, rows[1].Enabled)
	assert.Equal(t, 512, rows[2].MinWidth)
}

func TestSyscallReportFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.toml")
	require.NoError(t, os.WriteFile(path, []byte("arch = \"arm64\"\nos = \"openbsd\"\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, "syscalls", []string{"-config", path, "-json"}))

	var rows []SyscallRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "linux", rows[0].Flavor)
	assert.Equal(t, "bsd", rows[1].Flavor)
	assert.Equal(t, "svc #0; cset x8, cc", rows[1].Template)
	assert.Equal(t, 7, rows[1].MaxOperands)
	assert.Empty(t, rows[1].Error)
}

func TestABIReportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, "abi", []string{"-target", "i386-linux"}))
	out := buf.String()
	assert.Contains(t, out, "# i386-linux")
	assert.Contains(t, out, "CONV")
	assert.Contains(t, out, "odin")
	assert.Contains(t, out, "indirect")
}

func TestABIReportClassifications(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, "abi", []string{"-target", "amd64-linux", "-json"}))
	var rows []ABIRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2*len(abiSamples))

	byKey := map[string]ABIRow{}
	for _, r := range rows {
		byKey[r.Convention+" "+r.Type] = r
	}
	assert.Equal(t, "direct", byKey["odin int"].Param)
	assert.True(t, byKey["odin "+words(2).String()].CalleeCopy)
	assert.False(t, byKey["odin "+words(3).String()].CalleeCopy)
	assert.True(t, byKey["c "+words(3).String()].Byval)
}

func TestInspectErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad target", []string{"-target", "amd64"}},
		{"unknown arch", []string{"-target", "vax-linux"}},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.toml")}},
		{"extra argument", []string{"foo"}},
		{"unknown flag", []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, inspect(&bytes.Buffer{}, "swizzle", tt.args))
		})
	}
}
