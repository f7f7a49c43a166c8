// Payments App Node
// Runs the payments rollup chain: tx pool, build loop, prover and DA
// submission.

package main

import (
	"fmt"
	"os"

	"github.com/certen/zkrollup-nexus/pkg/node"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func main() {
	if err := node.Launch(types.ChainPayments); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
