package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log, err := New("debug", "json", &buf)
	req.NoError(err)
	req.Equal(logrus.DebugLevel, log.GetLevel())

	log.WithFields(logrus.Fields{"conn": "c1"}).Debug("Connection opened")

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("c1", line["conn"])
	req.Equal("Connection opened", line["msg"])
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log, err := New("warn", "text", &buf)
	req.NoError(err)
	log.Info("hidden")
	req.Zero(buf.Len())
	log.Warn("shown")
	req.Contains(buf.String(), "shown")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	require.Error(t, err)
	_, err = New("info", "xml", &bytes.Buffer{})
	require.Error(t, err)
}

func TestOpen_File(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "gateway.log")

	log, closer, err := Open("info", "text", path)
	req.NoError(err)
	log.Info("Gateway starting")
	req.NoError(closer.Close())

	data, err := os.ReadFile(path)
	req.NoError(err)
	req.Contains(string(data), "Gateway starting")
}
