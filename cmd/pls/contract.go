package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/keys"
	"github.com/ark-network/pls/pkg/network"
	"github.com/ark-network/pls/pkg/signature"
	"github.com/urfave/cli/v2"
)

var (
	filehashCommand = cli.Command{
		Name:  "filehash",
		Usage: "Computes the hash of the file a contract refers to",
		Action: func(ctx *cli.Context) error {
			return filehash(ctx)
		},
		Flags: []cli.Flag{&fileFlag},
	}

	tweakCommand = cli.Command{
		Name:  "tweak",
		Usage: "Tweaks a pubkey with a file hash",
		Action: func(ctx *cli.Context) error {
			return tweak(ctx)
		},
		Flags: []cli.Flag{&pubkeyFlag, &fileHashFlag},
	}

	hashCommand = cli.Command{
		Name:  "hash",
		Usage: "Computes the canonical hash of the contract terms",
		Action: func(ctx *cli.Context) error {
			return hash(ctx)
		},
		Flags: []cli.Flag{&contractFlag},
	}

	signCommand = cli.Command{
		Name:  "sign",
		Usage: "Signs the contract terms with the identity",
		Action: func(ctx *cli.Context) error {
			return sign(ctx)
		},
		Flags: []cli.Flag{&contractFlag, &untweakedFlag, &passwordFlag},
	}

	verifyCommand = cli.Command{
		Name:  "verify",
		Usage: "Verifies a signature over the contract terms, or all the signatures of a finalized contract",
		Action: func(ctx *cli.Context) error {
			return verify(ctx)
		},
		Flags: []cli.Flag{
			&contractFlag, &signerFlag, &signatureFlag, &untweakedFlag, &referencedFileFlag,
		},
	}
)

func filehash(ctx *cli.Context) error {
	f, err := os.Open(ctx.String(fileFlag.Name))
	if err != nil {
		return err
	}
	//nolint:all
	defer f.Close()

	fileHash, err := contract.FileHash(f)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"fileHash": fileHash})
}

func tweak(ctx *cli.Context) error {
	tweaked, err := keys.TweakXOnly(ctx.String(pubkeyFlag.Name), ctx.String(fileHashFlag.Name))
	if err != nil {
		return err
	}

	net, err := network.Resolve(cfg.Network)
	if err != nil {
		return err
	}
	xonly, err := hex.DecodeString(tweaked)
	if err != nil {
		return err
	}
	address, err := net.TaprootAddress(xonly)
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"tweakedPubkey": tweaked,
		"network":       net.Name,
		"address":       address,
	})
}

func hash(ctx *cli.Context) error {
	terms, err := readContract(ctx)
	if err != nil {
		return err
	}
	digest, err := terms.Digest()
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"hash": hex.EncodeToString(digest[:])})
}

func sign(ctx *cli.Context) error {
	terms, err := readContract(ctx)
	if err != nil {
		return err
	}
	id, err := unlock(ctx)
	if err != nil {
		return err
	}

	sig, err := id.SignContract(*terms, !ctx.Bool(untweakedFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"pubkey":    id.PubKey(),
		"signature": hex.EncodeToString(sig),
	})
}

func verify(ctx *cli.Context) error {
	if path := ctx.String(referencedFileFlag.Name); len(path) > 0 {
		terms, err := readContract(ctx)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		//nolint:all
		defer f.Close()
		if err := contract.CheckFile(*terms, f); err != nil {
			return err
		}
	}

	if !ctx.IsSet(signatureFlag.Name) {
		return verifyFinalContract(ctx)
	}

	terms, err := readContract(ctx)
	if err != nil {
		return err
	}
	if !ctx.IsSet(signerFlag.Name) {
		return fmt.Errorf("missing --%s for the signature", signerFlag.Name)
	}
	pubkey, err := keys.DecodeHex(ctx.String(signerFlag.Name))
	if err != nil {
		return err
	}
	sig, err := signature.ParseSignature(ctx.String(signatureFlag.Name))
	if err != nil {
		return err
	}

	valid := signature.VerifyContractTweaked(pubkey, *terms, sig)
	if ctx.Bool(untweakedFlag.Name) {
		valid = signature.VerifyContract(pubkey, *terms, sig)
	}
	return printJSON(map[string]bool{"valid": valid})
}

func verifyFinalContract(ctx *cli.Context) error {
	buf, err := os.ReadFile(ctx.String(contractFlag.Name))
	if err != nil {
		return err
	}
	final, err := contract.ParseContract(buf)
	if err != nil {
		return fmt.Errorf("invalid contract: %w", err)
	}
	if len(final.Signatures) <= 0 {
		return fmt.Errorf("contract carries no signatures, pass --%s and --%s", signerFlag.Name, signatureFlag.Name)
	}

	invalid, err := signature.VerifyContractSignatures(
		cntx, *final, !ctx.Bool(untweakedFlag.Name),
	)
	if err != nil && len(invalid) <= 0 {
		return err
	}
	return printJSON(map[string]interface{}{
		"valid":   len(invalid) <= 0,
		"signers": final.Signers(),
		"invalid": invalid,
	})
}

func readContract(ctx *cli.Context) (*contract.UnsignedContract, error) {
	buf, err := os.ReadFile(ctx.String(contractFlag.Name))
	if err != nil {
		return nil, err
	}
	terms, err := contract.ParseUnsignedContract(buf)
	if err != nil {
		return nil, fmt.Errorf("invalid contract: %w", err)
	}
	return terms, nil
}
