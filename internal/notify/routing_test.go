package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRouting(t *testing.T) {
	t.Parallel()

	table, err := ParseRouting([]byte(`
routes:
  like: site
  reply: push
  system: email
  follow: database
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]StrategyType{
		"like":   StrategySite,
		"reply":  StrategyPush,
		"system": StrategyEmail,
		"follow": StrategyDatabase,
	}, table)
}

func TestParseRouting_UnknownStrategy(t *testing.T) {
	t.Parallel()

	_, err := ParseRouting([]byte("routes:\n  like: carrier-pigeon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestParseRouting_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := ParseRouting([]byte("routes: [not a map"))
	assert.Error(t, err)
}

func TestParseRouting_Empty(t *testing.T) {
	t.Parallel()

	table, err := ParseRouting([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestLoadRoutingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "routing.yml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  like: site\n"), 0o600))

	table, err := LoadRoutingFile(path)
	require.NoError(t, err)
	assert.Equal(t, StrategySite, table["like"])

	_, err = LoadRoutingFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
