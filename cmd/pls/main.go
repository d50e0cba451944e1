package main

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/ark-network/pls/internal/app-config"
	"github.com/ark-network/pls/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cntx      = context.Background()
	cfg       *config.Config
	appConfig *appconfig.Config
)

func main() {
	app := cli.NewApp()

	app.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	app.Name = "pls"
	app.Usage = "negotiate file-bound contracts over nostr"
	app.Commands = append(
		app.Commands,
		&initCommand,
		&signoutCommand,
		&whoamiCommand,
		&filehashCommand,
		&tweakCommand,
		&hashCommand,
		&signCommand,
		&verifyCommand,
		&proposeCommand,
		&approveCommand,
		&negotiationsCommand,
		&dmCommand,
		&listenCommand,
	)
	app.Flags = []cli.Flag{datadirFlag}

	app.Before = func(ctx *cli.Context) error {
		if ctx.IsSet(datadirFlag.Name) {
			viper.Set(config.Datadir, ctx.String(datadirFlag.Name))
		}

		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return fmt.Errorf("invalid config: %s", err)
		}
		log.SetLevel(log.Level(cfg.LogLevel))

		appConfig = &appconfig.Config{
			Network:              cfg.Network,
			Relays:               cfg.Relays,
			PublishTimeout:       cfg.PublishTimeout,
			SkewMargin:           cfg.ClockSkewMargin,
			SubscriptionLookback: cfg.SubscriptionLookback,
			RepublishInterval:    cfg.RepublishInterval,
			EventDbType:          cfg.EventDbType,
			EventDbDir:           cfg.EventDbDir,
			IdentityStoreType:    cfg.IdentityStoreType,
			IdentityDir:          cfg.IdentityDir,
			UnlockerType:         cfg.UnlockerType,
			UnlockerFilePath:     cfg.UnlockerFilePath,
			UnlockerPassword:     cfg.UnlockerPassword,
			KeyMode:              cfg.KeyMode,
			ClientQuorum:         cfg.ClientQuorum,
			DMCipher:             cfg.DMCipher,
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid config: %s", err)
		}
		log.Debugf("loaded config: %s", cfg)
		return nil
	}

	app.After = func(_ *cli.Context) error {
		if appConfig != nil {
			appConfig.Close()
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}
