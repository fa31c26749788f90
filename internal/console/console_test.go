package console

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLineHonorsBackspace(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	go func() {
		w.WriteString("helpo\b\blo\r")
		w.Close()
	}()

	var out bytes.Buffer
	c := New(r, &out)
	line, err := c.GetLine(128)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
}

func TestPutStringWritesVerbatim(t *testing.T) {
	var out bytes.Buffer
	c := New(nil, &out)
	c.PutString([]byte("hi"))
	assert.Equal(t, "hi", out.String())
}

func TestEnableRawNoopOnNonTerminal(t *testing.T) {
	r, _, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	c := New(r, &bytes.Buffer{})
	assert.NoError(t, c.EnableRaw())
	assert.NoError(t, c.Restore())
}
