package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstructionCountSuffixes(t *testing.T) {
	cases := map[string]int64{
		"0":    0,
		"100":  100,
		"1K":   1_000,
		"2.5M": 2_500_000,
		"1G":   1_000_000_000,
		"1m":   1_000_000,
	}
	for in, want := range cases {
		got, err := parseInstructionCount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseInstructionCountInvalid(t *testing.T) {
	_, err := parseInstructionCount("not-a-number")
	assert.Error(t, err)
}

func TestRunFailsWithoutCellsOrAncestor(t *testing.T) {
	code := run([]string{"--quiet"})
	assert.Equal(t, 1, code)
}
