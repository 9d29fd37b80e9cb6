// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = Record{
	YawSetpoint:    -15,
	YawActual:      -12,
	HeightSetpoint: 50,
	HeightPercent:  47,
	MainDuty:       42,
	TailDuty:       38,
	Mode:           "Flying",
}

func TestFormatLine(t *testing.T) {
	assert.Equal(t,
		"Yaw = -15 [-12] Alt =  50 [ 47] Main =  42 pct Tail =  38 pct",
		FormatLine(sample))
}

func TestFormatBlock(t *testing.T) {
	want := "------------\n" +
		"Yaw = -15 [-12] deg\n" +
		"Alt =  50 [ 47] pct\n" +
		"Main =  42  pct\n" +
		"Tail =  38\n"
	assert.Equal(t, want, FormatBlock(sample))
}

func TestWriters(t *testing.T) {
	var line, block bytes.Buffer

	require.NoError(t, LineWriter{W: &line}.Display(sample))
	require.NoError(t, BlockWriter{W: &block}.Display(sample))

	assert.Equal(t, FormatLine(sample)+"\n", line.String())
	assert.Equal(t, FormatBlock(sample), block.String())
}

func TestAlternator(t *testing.T) {
	var got []string
	a := NewAlternator(
		SinkFunc(func(r Record) error { got = append(got, "primary"); return nil }),
		SinkFunc(func(r Record) error { got = append(got, "secondary"); return nil }),
	)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Display(sample))
	}

	assert.Equal(t, []string{"primary", "secondary", "primary", "secondary", "primary"}, got)
}

func TestAlternator_NilSinks(t *testing.T) {
	a := NewAlternator(nil, nil)
	assert.NoError(t, a.Display(sample))
	assert.NoError(t, a.Display(sample))
}

func TestAlternator_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAlternator(SinkFunc(func(Record) error { return boom }), nil)

	err := a.Display(sample)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, a.Display(sample))
}
