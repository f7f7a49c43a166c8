// ZK Setup CLI
// Runs the one-time circuit compilation and Groth16 setup for both chain
// guests, writing key directories the nodes and Nexus share.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/certen/zkrollup-nexus/pkg/types"
	"github.com/certen/zkrollup-nexus/pkg/zkvm"
)

func main() {
	keyRoot := flag.String("keys", "./keys", "directory to write per-chain key directories under")
	flag.Parse()

	for _, chain := range []types.AppChain{types.ChainNFT, types.ChainPayments} {
		if err := setup(chain, filepath.Join(*keyRoot, string(chain))); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func setup(chain types.AppChain, dir string) error {
	guest, err := zkvm.NewZKStateMachine(chain)
	if err != nil {
		return err
	}
	prover := zkvm.NewProver(guest)
	if err := prover.Initialize(); err != nil {
		return fmt.Errorf("%s setup: %w", chain, err)
	}
	if err := prover.SaveKeys(dir); err != nil {
		return fmt.Errorf("%s save keys: %w", chain, err)
	}
	fmt.Printf("%s: image id %x, keys in %s\n", chain, prover.ImageID(), dir)
	return nil
}
