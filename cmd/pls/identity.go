package main

import (
	"bytes"
	"fmt"
	"syscall"

	"github.com/ark-network/pls/pkg/identity"
	"github.com/ark-network/pls/pkg/network"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var (
	initCommand = cli.Command{
		Name:  "init",
		Usage: "Create or import the identity and protect it with a password",
		Action: func(ctx *cli.Context) error {
			return initIdentity(ctx)
		},
		Flags: []cli.Flag{&passwordFlag, &privateKeyFlag},
	}

	signoutCommand = cli.Command{
		Name:  "signout",
		Usage: "Delete the stored identity",
		Action: func(ctx *cli.Context) error {
			return signout(ctx)
		},
	}

	whoamiCommand = cli.Command{
		Name:  "whoami",
		Usage: "Shows the pubkey of the identity",
		Action: func(ctx *cli.Context) error {
			return whoami(ctx)
		},
		Flags: []cli.Flag{&passwordFlag},
	}
)

func initIdentity(ctx *cli.Context) error {
	password, err := readPassword(ctx, true)
	if err != nil {
		return err
	}

	session := appConfig.IdentitySession()
	var id *identity.Identity
	if key := ctx.String(privateKeyFlag.Name); len(key) > 0 {
		id, err = session.LoginWithPrivKey(cntx, key, string(password))
	} else {
		id, err = session.LoginWithRandomKey(cntx, string(password))
	}
	if err != nil {
		return err
	}
	return printIdentity(id)
}

func signout(_ *cli.Context) error {
	if err := appConfig.IdentitySession().SignOut(cntx); err != nil {
		return err
	}
	fmt.Println("identity deleted")
	return nil
}

func whoami(ctx *cli.Context) error {
	id, err := unlock(ctx)
	if err != nil {
		return err
	}
	return printIdentity(id)
}

func printIdentity(id *identity.Identity) error {
	npub, err := id.Npub()
	if err != nil {
		return err
	}
	net, err := network.Resolve(cfg.Network)
	if err != nil {
		return err
	}
	xonly := id.PrivKey().PubKey().SerializeCompressed()[1:]
	address, err := net.TaprootAddress(xonly)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"pubkey":  id.PubKey(),
		"npub":    npub,
		"network": net.Name,
		"address": address,
	})
}

// unlock restores the identity with the password given by flag, by the
// configured unlocker or typed in the terminal, in this order.
func unlock(ctx *cli.Context) (*identity.Identity, error) {
	password := ctx.String(passwordFlag.Name)
	if len(password) <= 0 && appConfig.UnlockerService() == nil {
		buf, err := readPassword(ctx, false)
		if err != nil {
			return nil, err
		}
		password = string(buf)
	}
	return appConfig.Unlock(cntx, password)
}

func readPassword(ctx *cli.Context, confirm bool) ([]byte, error) {
	password := []byte(ctx.String(passwordFlag.Name))
	if len(password) > 0 {
		return password, nil
	}

	fmt.Print("password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // new line
	if err != nil {
		return nil, err
	}
	if len(password) <= 0 {
		return nil, fmt.Errorf("missing password")
	}

	if confirm {
		fmt.Print("confirm password: ")
		again, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // new line
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(password, again) {
			return nil, fmt.Errorf("passwords do not match")
		}
	}
	return password, nil
}
