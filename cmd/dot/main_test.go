package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run([]string{"-data", "testdata/data.yaml", "testdata/page.dot"}, strings.NewReader(""), &out, &errOut)
	require.NoError(t, err)
	require.Equal(t, "<h1>Fish &#38; Chips</h1>\n<span>0:cod</span><span>1:haddock</span>", out.String())
}

func TestRunStdin(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-strip"}, strings.NewReader("  <p>\n    {{=1 + 2}}\n  </p>\n"), &out, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, "<p>3</p>", out.String())
}

func TestRunConfig(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-config", "testdata/options.yaml"}, strings.NewReader(`<%url!"a b"%>`), &out, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, "a+b", out.String())
}

func TestRunDelims(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-delims", "[[,]]"}, strings.NewReader("[[= 6 * 7 ]]"), &out, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, "42", out.String())

	err = run([]string{"-delims", "[["}, strings.NewReader(""), &out, &bytes.Buffer{})
	require.Error(t, err)
}

func TestRunSourceAndDebug(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run([]string{"-source", "-debug", "-data", "testdata/data.yaml", "testdata/page.dot"}, strings.NewReader(""), &out, &errOut)
	require.NoError(t, err)
	require.Contains(t, out.String(), "for i, tag in slot[0] = it.tags {")
	require.Contains(t, errOut.String(), "Fish & Chips")
}

func TestRunErrors(t *testing.T) {
	err := run([]string{"-data", "testdata/missing.yaml"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, "read data")

	err = run(nil, strings.NewReader("{{rx!it}}"), &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, `unknown encoder "rx": not found`)

	err = run([]string{"a.dot", "b.dot"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
}
