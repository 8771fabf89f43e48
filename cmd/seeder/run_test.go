package main

import (
	"bytes"
	"testing"

	"refdata-seeder/internal/seeding/domain/model"
	apperrors "refdata-seeder/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSources(t *testing.T) {
	all := []model.DataSource{{Name: "cities"}, {Name: "carbrands"}, {Name: "banks"}}

	got, err := selectSources(all, nil)
	require.NoError(t, err)
	assert.Equal(t, all, got)

	got, err = selectSources(all, []string{"banks", "cities", "banks"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cities", got[0].Name)
	assert.Equal(t, "banks", got[1].Name)

	_, err = selectSources(all, []string{"airlines"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"run", "backup", "restore", "list-backups", "reconcile-assets", "storage-stats", "health", "serve", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--env-file", "testdata-missing.env"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestListBackupsCommand_DescribesOrder(t *testing.T) {
	cmd := NewListBackupsCommand()
	assert.Contains(t, cmd.Short, "oldest first")
}
