package appconfig_test

import (
	"context"
	"testing"
	"time"

	appconfig "github.com/ark-network/pls/internal/app-config"
	inmemoryrelay "github.com/ark-network/pls/internal/infrastructure/relay/inmemory"
	"github.com/ark-network/pls/pkg/identity"
	"github.com/stretchr/testify/require"
)

func newConfig() *appconfig.Config {
	return &appconfig.Config{
		Network:              "bitcoin_testnet",
		Relays:               []string{"wss://relay.damus.io"},
		PublishTimeout:       time.Second,
		SkewMargin:           2 * time.Minute,
		SubscriptionLookback: time.Hour,
		EventDbType:          "badger",
		IdentityStoreType:    identity.InMemoryStore,
		ScryptN:              1 << 4,
		UnlockerType:         "env",
		UnlockerPassword:     "password",
		KeyMode:              "tweaked",
		ClientQuorum:         -1,
		DMCipher:             "nip04",
	}
}

func TestValidate(t *testing.T) {
	fixtures := []struct {
		name   string
		mutate func(c *appconfig.Config)
	}{
		{"unsupported event db", func(c *appconfig.Config) { c.EventDbType = "sqlite" }},
		{"unsupported identity store", func(c *appconfig.Config) { c.IdentityStoreType = "keychain" }},
		{"unsupported unlocker", func(c *appconfig.Config) { c.UnlockerType = "vault" }},
		{"unsupported cipher", func(c *appconfig.Config) { c.DMCipher = "nip44" }},
		{"unknown network", func(c *appconfig.Config) { c.Network = "dogecoin" }},
		{"missing relays", func(c *appconfig.Config) { c.Relays = nil }},
		{"invalid relay", func(c *appconfig.Config) { c.Relays = []string{"http://relay"} }},
		{"invalid timeout", func(c *appconfig.Config) { c.PublishTimeout = 0 }},
		{"negative republish interval", func(c *appconfig.Config) { c.RepublishInterval = -1 }},
		{"unknown key mode", func(c *appconfig.Config) { c.KeyMode = "musig" }},
		{"empty env password", func(c *appconfig.Config) { c.UnlockerPassword = "" }},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			cfg := newConfig()
			f.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("valid", func(t *testing.T) {
		cfg := newConfig()
		require.NoError(t, cfg.Validate())
		require.NotNil(t, cfg.IdentitySession())
		require.NotNil(t, cfg.UnlockerService())
		require.Equal(t, -1, cfg.Policy().ClientQuorum)
	})
}

func TestAppService(t *testing.T) {
	ctx := context.Background()

	cfg := newConfig()
	cfg.Relays = nil
	cfg.RelayBus = inmemoryrelay.NewBus("")
	cfg.RepublishInterval = 1
	require.NoError(t, cfg.Validate())

	_, err := cfg.AppService()
	require.ErrorIs(t, err, identity.ErrNotLoggedIn)

	_, err = cfg.Unlock(ctx, "")
	require.ErrorIs(t, err, identity.ErrNoIdentity)

	id, err := cfg.IdentitySession().LoginWithRandomKey(ctx, "password")
	require.NoError(t, err)

	restored, err := cfg.Unlock(ctx, "")
	require.NoError(t, err)
	require.Equal(t, id.PubKey(), restored.PubKey())

	svc, err := cfg.AppService()
	require.NoError(t, err)
	defer cfg.Close()

	require.NoError(t, svc.Start())
	defer svc.Stop()

	info := svc.GetInfo(ctx)
	require.Equal(t, id.PubKey(), info.PubKey)
	require.Equal(t, []string{"inmemory"}, info.Relays)
	require.Equal(t, "tweaked", info.KeyMode)
	require.Equal(t, "nip04", info.Cipher)
}
