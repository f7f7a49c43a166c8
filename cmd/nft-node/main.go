// NFT App Node
// Runs the NFT rollup chain: tx pool, build loop, prover, DA submission
// and the marketplace endpoints.

package main

import (
	"fmt"
	"os"

	"github.com/certen/zkrollup-nexus/pkg/node"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func main() {
	if err := node.Launch(types.ChainNFT); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
