package config_test

import (
	"testing"
	"time"

	"github.com/ark-network/pls/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	datadir := t.TempDir()
	t.Setenv("PLS_DATADIR", datadir)
	t.Setenv("PLS_RELAYS", " wss://relay.damus.io, ,wss://nos.lol")
	t.Setenv("PLS_CLIENT_QUORUM", "0")
	t.Setenv("PLS_PUBLISH_TIMEOUT", "3s")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	require.Equal(t, datadir, cfg.Datadir)
	require.Equal(t, []string{"wss://relay.damus.io", "wss://nos.lol"}, cfg.Relays)
	require.Equal(t, 0, cfg.ClientQuorum)
	require.Equal(t, 3*time.Second, cfg.PublishTimeout)
	require.Equal(t, 2*time.Minute, cfg.ClockSkewMargin)
	require.Equal(t, "bitcoin_testnet", cfg.Network)
	require.Equal(t, "tweaked", cfg.KeyMode)
	require.Equal(t, "badger", cfg.EventDbType)
	require.Equal(t, 4, cfg.LogLevel)
	require.NotContains(t, cfg.String(), "UnlockerPassword")
}
