package appconfig

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ark-network/pls/internal/core/application"
	"github.com/ark-network/pls/internal/core/domain"
	"github.com/ark-network/pls/internal/core/ports"
	"github.com/ark-network/pls/internal/infrastructure/db"
	inmemoryrelay "github.com/ark-network/pls/internal/infrastructure/relay/inmemory"
	nostrrelay "github.com/ark-network/pls/internal/infrastructure/relay/nostr"
	scheduler "github.com/ark-network/pls/internal/infrastructure/scheduler/gocron"
	envunlocker "github.com/ark-network/pls/internal/infrastructure/unlocker/env"
	fileunlocker "github.com/ark-network/pls/internal/infrastructure/unlocker/file"
	"github.com/ark-network/pls/pkg/identity"
	filestore "github.com/ark-network/pls/pkg/identity/store/file"
	inmemorystore "github.com/ark-network/pls/pkg/identity/store/inmemory"
	"github.com/ark-network/pls/pkg/network"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var (
	supportedEventDbs = supportedType{
		"badger": {},
	}
	supportedIdentityStores = supportedType{
		identity.FileStore:     {},
		identity.InMemoryStore: {},
	}
	supportedUnlockers = supportedType{
		"env":  {},
		"file": {},
	}
	supportedCiphers = supportedType{
		protocol.NIP04: {},
	}
)

type Config struct {
	Network              string
	Relays               []string
	PublishTimeout       time.Duration
	SkewMargin           time.Duration
	SubscriptionLookback time.Duration
	RepublishInterval    int64

	EventDbType       string
	EventDbDir        string
	IdentityStoreType string
	IdentityDir       string
	// ScryptN is the cost of the key derivation protecting the stored
	// identity, 0 selects identity.DefaultScryptN.
	ScryptN int

	UnlockerType     string
	UnlockerFilePath string // file unlocker
	UnlockerPassword string // env unlocker

	KeyMode      string
	ClientQuorum int
	DMCipher     string

	// MetricsRegistry, if set, collects the relay metrics.
	MetricsRegistry prometheus.Registerer
	// RelayBus, if set, replaces the relay network with an in-process bus.
	RelayBus *inmemoryrelay.Bus

	policy    domain.Policy
	cipher    protocol.Cipher
	session   *identity.Session
	unlocker  ports.Unlocker
	repo      ports.RepoManager
	relay     ports.RelayClient
	scheduler ports.SchedulerService
	svc       application.Service
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf("event db type not supported, please select one of: %s", supportedEventDbs)
	}
	if !supportedIdentityStores.supports(c.IdentityStoreType) {
		return fmt.Errorf("identity store type not supported, please select one of: %s", supportedIdentityStores)
	}
	if len(c.UnlockerType) > 0 && !supportedUnlockers.supports(c.UnlockerType) {
		return fmt.Errorf("unlocker type not supported, please select one of: %s", supportedUnlockers)
	}
	if !supportedCiphers.supports(c.DMCipher) {
		return fmt.Errorf("dm cipher not supported, please select one of: %s", supportedCiphers)
	}
	if !network.IsValid(c.Network) {
		return fmt.Errorf("invalid network, must be one of: %s", strings.Join(network.Names(), " | "))
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("invalid publish timeout, must be positive")
	}
	if c.SkewMargin < 0 {
		return fmt.Errorf("invalid clock skew margin, must not be negative")
	}
	if c.RepublishInterval < 0 {
		return fmt.Errorf("invalid republish interval, must not be negative")
	}
	if c.RelayBus == nil {
		if len(c.Relays) == 0 {
			return fmt.Errorf("missing nostr relays")
		}
		for _, relay := range c.Relays {
			if !nostr.IsValidRelayURL(relay) {
				return fmt.Errorf("invalid nostr relay url: %s", relay)
			}
		}
	}

	keyMode, err := domain.ParseKeyMode(c.KeyMode)
	if err != nil {
		return err
	}
	c.policy = domain.Policy{KeyMode: keyMode, ClientQuorum: c.ClientQuorum}

	if c.cipher, err = protocol.NewCipher(c.DMCipher); err != nil {
		return err
	}
	if err := c.identitySession(); err != nil {
		return err
	}
	if err := c.unlockerService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IdentitySession() *identity.Session {
	return c.session
}

// UnlockerService returns nil when no unlocker is configured.
func (c *Config) UnlockerService() ports.Unlocker {
	return c.unlocker
}

func (c *Config) Policy() domain.Policy {
	return c.policy
}

// Unlock restores the stored identity. When password is empty it is asked
// to the configured unlocker.
func (c *Config) Unlock(ctx context.Context, password string) (*identity.Identity, error) {
	if len(password) <= 0 {
		if c.unlocker == nil {
			return nil, fmt.Errorf("missing password and no unlocker configured")
		}
		var err error
		if password, err = c.unlocker.GetPassword(ctx); err != nil {
			return nil, fmt.Errorf("failed to get password from unlocker: %s", err)
		}
	}
	return c.session.Restore(ctx, password)
}

// AppService wires the negotiation service for the active identity.
func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

// Close releases the relay connections and the event store.
func (c *Config) Close() {
	if c.relay != nil {
		c.relay.Close()
		c.relay = nil
	}
	if c.repo != nil {
		c.repo.Close()
		c.repo = nil
	}
	c.svc = nil
}

func (c *Config) identitySession() error {
	var store identity.Store
	var err error

	switch c.IdentityStoreType {
	case identity.FileStore:
		store, err = filestore.NewIdentityStore(c.IdentityDir)
	case identity.InMemoryStore:
		store, err = inmemorystore.NewIdentityStore()
	default:
		return fmt.Errorf("unknown identity store type")
	}
	if err != nil {
		return err
	}

	var cypher *identity.Cypher
	if c.ScryptN > 0 {
		cypher = identity.NewCypher(c.ScryptN)
	}
	c.session = identity.NewSession(store, cypher)
	return nil
}

func (c *Config) unlockerService() error {
	if len(c.UnlockerType) <= 0 {
		return nil
	}

	var svc ports.Unlocker
	var err error

	switch c.UnlockerType {
	case "file":
		svc, err = fileunlocker.NewService(c.UnlockerFilePath)
	case "env":
		svc, err = envunlocker.NewService(c.UnlockerPassword)
	default:
		err = fmt.Errorf("unknown unlocker type")
	}
	if err != nil {
		return err
	}
	c.unlocker = svc
	return nil
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "badger":
		eventStoreConfig = []interface{}{c.EventDbDir, logger}
	default:
		return fmt.Errorf("unknown event db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		EventStoreConfig: eventStoreConfig,
	})
	if err != nil {
		return err
	}
	c.repo = svc
	return nil
}

func (c *Config) relayClient() error {
	if c.RelayBus != nil {
		c.relay = inmemoryrelay.NewRelayClient(c.RelayBus)
		return nil
	}

	svc, err := nostrrelay.NewRelayClient(
		c.Relays,
		nostrrelay.WithRegisterer(c.MetricsRegistry),
		nostrrelay.WithResubscribeMargin(c.SkewMargin),
	)
	if err != nil {
		return err
	}
	c.relay = svc
	return nil
}

func (c *Config) schedulerService() error {
	if c.RepublishInterval <= 0 {
		return nil
	}
	c.scheduler = scheduler.NewScheduler()
	return nil
}

func (c *Config) appService() error {
	if c.session == nil {
		return fmt.Errorf("config not validated")
	}
	id, err := c.session.Identity()
	if err != nil {
		return err
	}

	if c.repo == nil {
		if err := c.repoManager(); err != nil {
			return err
		}
	}
	if c.relay == nil {
		if err := c.relayClient(); err != nil {
			return err
		}
	}
	if err := c.schedulerService(); err != nil {
		return err
	}

	svc, err := application.NewService(application.Config{
		Identity:             id,
		Policy:               c.policy,
		PublishTimeout:       c.PublishTimeout,
		SkewMargin:           c.SkewMargin,
		SubscriptionLookback: c.SubscriptionLookback,
		RepublishInterval:    c.RepublishInterval,
		Cipher:               c.cipher,
	}, c.relay, c.repo, c.scheduler)
	if err != nil {
		return err
	}
	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
