package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/jp2view/enginetest"
	"github.com/ajroetker/jp2view/openjpeg"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "a.png"), outputName("out", "a.jp2"))
	assert.Equal(t, filepath.Join("out", "b.c.png"), outputName("out", filepath.Join("x", "b.c.j2k")))
	assert.Equal(t, filepath.Join("out", "noext.png"), outputName("out", "noext"))
}

func TestOutputNames(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    []string
		wantErr string
	}{
		{"distinct", []string{"a.jp2", filepath.Join("x", "b.j2k")}, []string{filepath.Join("out", "a.png"), filepath.Join("out", "b.png")}, ""},
		{"same base in two directories", []string{filepath.Join("a", "x.jp2"), filepath.Join("b", "x.jp2")}, nil, "x.png"},
		{"same stem, different extension", []string{"x.jp2", "x.j2k"}, nil, "x.jp2 and x.j2k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := outputNames("out", tt.files)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsOutputCollision(t *testing.T) {
	data := enginetest.Gray8(8, 8).Codestream()
	a := writeFixture(t, "x.j2k", data)
	b := writeFixture(t, "x.j2k", data)
	require.NotEqual(t, a, b)

	out := t.TempDir()
	_, _, err := run(t, "decode", "-o", out, a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "would both be written to "+filepath.Join(out, "x.png"))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is decoded or written")
}

func TestProfileMode(t *testing.T) {
	var p profileMode
	require.NoError(t, p.Set("cpu"))
	assert.Equal(t, "cpu", p.String())
	require.NoError(t, p.Set(""))
	assert.Nil(t, p.start(t.TempDir()))

	err := p.Set("block")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cpu, mem")
}

func TestInfo(t *testing.T) {
	f := enginetest.YCbCr420(32, 16)
	f.Comment = "fixture"
	path := writeFixture(t, "a.jp2", f.JP2())

	out, _, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "JP2 32x16")
	assert.Contains(t, out, "component 1: 16x8, 8-bit unsigned, subsampling 2x2")
	assert.Contains(t, out, "comment: fixture")
}

func TestInfoReportsFailures(t *testing.T) {
	good := writeFixture(t, "good.j2k", enginetest.Gray8(8, 8).Codestream())
	bad := writeFixture(t, "bad.j2k", []byte("not an image"))

	out, stderr, err := run(t, "info", good, bad)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 files failed", err.Error())
	assert.Contains(t, out, "good.j2k")
	assert.Contains(t, stderr, "bad.j2k")
}

func TestDecodeWithoutEngine(t *testing.T) {
	if openjpeg.Available {
		t.Skip("built with libopenjp2")
	}
	path := writeFixture(t, "a.j2k", enginetest.Gray8(8, 8).Codestream())
	_, _, err := run(t, "decode", "-o", t.TempDir(), path)
	require.Error(t, err)
	assert.Equal(t, "1 of 1 files failed", err.Error())
}

func TestDecodeRejectsBadFlags(t *testing.T) {
	_, _, err := run(t, "decode", "--profile", "trace", "a.jp2")
	assert.Error(t, err)

	_, _, err = run(t, "decode")
	assert.Error(t, err)
}
