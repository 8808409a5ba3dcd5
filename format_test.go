package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5242880, "5.0 MB"},
		{1610612736, "1.5 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.bytes))
	}
}

func TestStatusf_Quiet(t *testing.T) {
	restoreGlobals(t)

	oldQuiet := flagQuiet
	t.Cleanup(func() { flagQuiet = oldQuiet })

	var buf bytes.Buffer
	statusOut = &buf

	flagQuiet = true
	statusf("hidden %d\n", 1)
	assert.Empty(t, buf.String())

	flagQuiet = false
	statusf("shown %d\n", 2)
	assert.Equal(t, "shown 2\n", buf.String())
}
