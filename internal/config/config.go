package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
)

type Config struct {
	Datadir  string
	LogLevel int
	Network  string
	Relays   []string

	PublishTimeout       time.Duration
	ClockSkewMargin      time.Duration
	SubscriptionLookback time.Duration
	RepublishInterval    int64

	EventDbType       string
	EventDbDir        string
	IdentityStoreType string
	IdentityDir       string

	UnlockerType     string
	UnlockerFilePath string // file unlocker
	UnlockerPassword string `json:"-"` // env unlocker

	KeyMode      string
	ClientQuorum int
	DMCipher     string
	MetricsAddr  string
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir              = "DATADIR"
	LogLevel             = "LOG_LEVEL"
	Network              = "NETWORK"
	Relays               = "RELAYS"
	PublishTimeout       = "PUBLISH_TIMEOUT"
	ClockSkewMargin      = "CLOCK_SKEW_MARGIN"
	SubscriptionLookback = "SUBSCRIPTION_LOOKBACK"
	EventDbType          = "EVENT_DB_TYPE"
	IdentityStoreType    = "IDENTITY_STORE_TYPE"
	UnlockerType         = "UNLOCKER_TYPE"
	UnlockerFilePath     = "UNLOCKER_FILE_PATH"
	UnlockerPassword     = "UNLOCKER_PASSWORD"
	KeyMode              = "KEY_MODE"
	ClientQuorum         = "CLIENT_QUORUM"
	RepublishInterval    = "REPUBLISH_INTERVAL"
	MetricsAddr          = "METRICS_ADDR"
	DMCipher             = "DM_CIPHER"

	defaultDatadir              = btcutil.AppDataDir("pls", false)
	defaultLogLevel             = 4
	defaultNetwork              = "bitcoin_testnet"
	defaultPublishTimeout       = 10 * time.Second
	defaultClockSkewMargin      = 2 * time.Minute
	defaultSubscriptionLookback = 24 * time.Hour
	defaultEventDbType          = "badger"
	defaultIdentityStoreType    = "file"
	defaultKeyMode              = "tweaked"
	defaultClientQuorum         = -1 // -1 means every client must approve
	defaultRepublishInterval    = 60
	defaultDMCipher             = "nip04"
	defaultRelays               = []string{
		"wss://nostr-pub.wellorder.net",
		"wss://relay.nostr.band",
		"wss://relay.damus.io",
		"wss://nostr.fmt.wiz.biz",
		"wss://offchain.pub",
		"wss://relay.current.fyi",
		"wss://nos.lol",
	}
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("PLS")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(Relays, strings.Join(defaultRelays, ","))
	viper.SetDefault(PublishTimeout, defaultPublishTimeout)
	viper.SetDefault(ClockSkewMargin, defaultClockSkewMargin)
	viper.SetDefault(SubscriptionLookback, defaultSubscriptionLookback)
	viper.SetDefault(EventDbType, defaultEventDbType)
	viper.SetDefault(IdentityStoreType, defaultIdentityStoreType)
	viper.SetDefault(KeyMode, defaultKeyMode)
	viper.SetDefault(ClientQuorum, defaultClientQuorum)
	viper.SetDefault(RepublishInterval, defaultRepublishInterval)
	viper.SetDefault(DMCipher, defaultDMCipher)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	datadir := viper.GetString(Datadir)

	return &Config{
		Datadir:              datadir,
		LogLevel:             viper.GetInt(LogLevel),
		Network:              viper.GetString(Network),
		Relays:               parseList(viper.GetString(Relays)),
		PublishTimeout:       viper.GetDuration(PublishTimeout),
		ClockSkewMargin:      viper.GetDuration(ClockSkewMargin),
		SubscriptionLookback: viper.GetDuration(SubscriptionLookback),
		RepublishInterval:    viper.GetInt64(RepublishInterval),
		EventDbType:          viper.GetString(EventDbType),
		EventDbDir:           filepath.Join(datadir, "db"),
		IdentityStoreType:    viper.GetString(IdentityStoreType),
		IdentityDir:          datadir,
		UnlockerType:         viper.GetString(UnlockerType),
		UnlockerFilePath:     viper.GetString(UnlockerFilePath),
		UnlockerPassword:     viper.GetString(UnlockerPassword),
		KeyMode:              viper.GetString(KeyMode),
		ClientQuorum:         viper.GetInt(ClientQuorum),
		DMCipher:             viper.GetString(DMCipher),
		MetricsAddr:          viper.GetString(MetricsAddr),
	}, nil
}

func parseList(value string) []string {
	list := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); len(item) > 0 {
			list = append(list, item)
		}
	}
	return list
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
