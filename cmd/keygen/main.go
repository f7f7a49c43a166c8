// Key Generation CLI
// Generates ed25519 account keys, and optionally builds signed mint
// transactions for either chain, ready to POST to an app node.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/certen/zkrollup-nexus/pkg/nft"
	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func main() {
	var (
		out      = flag.String("out", "keypair.hex", "path to write the generated private key")
		from     = flag.String("key", "", "existing key file to sign with (skips generation)")
		mint     = flag.String("mint", "", `build a signed mint transaction: "payments" or "nft"`)
		to       = flag.String("to", "", "recipient address for -mint (defaults to the key's own address)")
		amount   = flag.Uint64("amount", 1000, "amount for a payments mint")
		id       = flag.Uint64("id", 1, "token id for an nft mint")
		metadata = flag.String("metadata", "", "metadata for an nft mint")
	)
	flag.Parse()

	if err := run(*out, *from, *mint, *to, *amount, *id, *metadata); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(out, from, mint, to string, amount, id uint64, metadata string) error {
	var signer *types.Signer
	var err error
	if from != "" {
		signer, err = types.SignerFromFile(from)
		if err != nil {
			return err
		}
	} else {
		signer = types.NewSigner()
		if err := signer.Save(out); err != nil {
			return err
		}
		fmt.Printf("wrote private key to %s\n", out)
	}
	fmt.Printf("address: %s\n", signer.Address())

	if mint == "" {
		return nil
	}

	recipient := signer.Address()
	if to != "" {
		recipient, err = types.HexToAddress(to)
		if err != nil {
			return err
		}
	}

	var tx types.Transaction
	switch mint {
	case "payments":
		tx, err = payments.NewTransaction(signer, payments.Message{
			CallType: payments.CallMint,
			From:     signer.Address(),
			To:       recipient,
			Amount:   amount,
		})
	case "nft":
		tx, err = nft.NewTransaction(signer, nft.Message{
			CallType: nft.CallMint,
			Id:       nft.NewNftId(id),
			From:     signer.Address(),
			To:       recipient,
			Metadata: metadata,
		})
	default:
		return fmt.Errorf("unknown mint target %q", mint)
	}
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("tx hash: %s\n", tx.Hash().Hex())
	fmt.Println(string(body))
	return nil
}
