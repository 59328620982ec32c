package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"run", "serve", "import", "warming", "leads", "abtests", "metrics"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "outreach", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_RequiredFlag(t *testing.T) {
	flag := importCmd.Flags().Lookup("file")
	require.NotNil(t, flag, "import command should have --file flag")
}

func TestWarmingCommand_HasSubcommands(t *testing.T) {
	cmds := warmingCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"status", "pause", "unpause", "set-limits"} {
		assert.True(t, names[name], "warming should have subcommand %q", name)
	}
}

func TestWarmingSetLimitsCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"daily", "max", "increment"} {
		flag := warmingSetLimitsCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "warming set-limits should have --%s flag", flagName)
	}
}

func TestLeadsListCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"status", "tier", "limit", "offset"} {
		flag := leadsListCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "leads list should have --%s flag", flagName)
	}
	assert.Equal(t, "50", leadsListCmd.Flags().Lookup("limit").DefValue)
}
