package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/cardbench/internal/logging"
)

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	logger, err := logging.New(logging.Config{Level: "debug", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Debug("trial completed")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"trial completed"`)
	assert.Contains(t, string(data), `"level":"debug"`)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := logging.New(logging.Config{Level: "loud"})
	assert.Error(t, err)
	assert.NotNil(t, logging.NewOrNop(logging.Config{Level: "loud"}))
}
