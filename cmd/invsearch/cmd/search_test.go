package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmd_Flags(t *testing.T) {
	cmd := newSearchCmd()

	assert.NotNil(t, cmd.Flags().Lookup("mode"))
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	assert.NotNil(t, cmd.Flags().Lookup("json"))
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	cmd := newSearchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	assert.Error(t, err)
}

func TestSearchCmd_EmptyCatalogNoResults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INVSEARCH_DATA_DIR", dir)
	t.Setenv("INVSEARCH_SPOOL_DIR", filepath.Join(dir, "spool"))
	t.Setenv("INVSEARCH_EMBED_PROVIDER", "static")

	cmd := newSearchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"romaine", "--mode", "keyword"})

	err := cmd.Execute()

	require.NoError(t, err)
}

func TestSearchCmd_RejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INVSEARCH_DATA_DIR", dir)
	t.Setenv("INVSEARCH_SPOOL_DIR", filepath.Join(dir, "spool"))
	t.Setenv("INVSEARCH_EMBED_PROVIDER", "static")

	cmd := newSearchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"romaine", "--mode", "fulltext"})

	err := cmd.Execute()

	assert.Error(t, err)
}
