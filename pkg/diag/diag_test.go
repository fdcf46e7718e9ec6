package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/g4hal/pkg/config"
)

func TestSink(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.Infof("vdda: %dmV", 3000)
	s.Errorf("overrun")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.True(t, bytes.HasPrefix(lines[0], []byte("INFO  ")))
	assert.True(t, bytes.HasSuffix(lines[0], []byte("vdda: 3000mV")))
	assert.True(t, bytes.HasPrefix(lines[1], []byte("ERROR ")))
	assert.True(t, bytes.HasSuffix(lines[1], []byte("overrun")))
	assert.NoError(t, s.Close())
}

func TestOpen(t *testing.T) {
	s, err := Open(config.LogConfig{Output: "stdout"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	s, err = Open(config.LogConfig{})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = Open(config.LogConfig{Output: "syslog"})
	assert.Error(t, err)

	_, err = Open(config.LogConfig{Output: "serial", Port: "/dev/does-not-exist", BaudRate: 115200})
	assert.Error(t, err)
}
