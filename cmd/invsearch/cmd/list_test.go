package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCmd_Flags(t *testing.T) {
	cmd := newListCmd()

	assert.NotNil(t, cmd.Flags().Lookup("json"))
}

func TestListCmd_RejectsArgs(t *testing.T) {
	cmd := newListCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"extra"})

	err := cmd.Execute()

	assert.Error(t, err)
}

func TestListCmd_EmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INVSEARCH_DATA_DIR", dir)
	t.Setenv("INVSEARCH_SPOOL_DIR", filepath.Join(dir, "spool"))
	t.Setenv("INVSEARCH_EMBED_PROVIDER", "static")

	cmd := newListCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.NoError(t, err)
}
