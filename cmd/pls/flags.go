package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory, overrides PLS_DATADIR",
	}
	passwordFlag = cli.StringFlag{
		Name:   "password",
		Usage:  "password protecting the identity",
		Hidden: true,
	}
	privateKeyFlag = cli.StringFlag{
		Name:  "privkey",
		Usage: "optional, hex or nsec private key to import instead of generating a new one",
	}
	fileFlag = cli.StringFlag{
		Name:     "file",
		Usage:    "path of the file referenced by the contract",
		Required: true,
	}
	pubkeyFlag = cli.StringFlag{
		Name:     "pubkey",
		Usage:    "hex encoded x-only or compressed pubkey",
		Required: true,
	}
	fileHashFlag = cli.StringFlag{
		Name:     "file-hash",
		Usage:    "hex encoded sha256 of the contract file",
		Required: true,
	}
	contractFlag = cli.StringFlag{
		Name:     "contract",
		Usage:    "path of the JSON encoded contract terms",
		Required: true,
	}
	signerFlag = cli.StringFlag{
		Name:  "pubkey",
		Usage: "hex encoded x-only or compressed pubkey of the signer",
	}
	signatureFlag = cli.StringFlag{
		Name:  "signature",
		Usage: "hex encoded schnorr signature, if omitted all the signatures of the contract are checked",
	}
	referencedFileFlag = cli.StringFlag{
		Name:  "file",
		Usage: "optional, path of the file the contract refers to, checked against its file hash",
	}
	untweakedFlag = cli.BoolFlag{
		Name:  "untweaked",
		Usage: "sign or verify with the plain key instead of the one tweaked by the file hash",
	}
	makerFlag = cli.StringFlag{
		Name:  "maker",
		Usage: "hex or npub pubkey of the maker, required when more makers requested a contract for the same file",
	}
	waitFlag = cli.DurationFlag{
		Name:  "wait",
		Usage: "how long to wait for the contract request to show up on the relays",
		Value: 30 * time.Second,
	}
	toFlag = cli.StringFlag{
		Name:     "to",
		Usage:    "hex or npub pubkey of the recipient",
		Required: true,
	}
	messageFlag = cli.StringFlag{
		Name:     "message",
		Usage:    "plaintext of the direct message",
		Required: true,
	}
)
