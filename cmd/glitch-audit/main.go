// Command glitch-audit audits the human label taxonomy of Gravity Spy
// spectrograms by projecting their CNN embeddings onto a 2D manifold,
// clustering it by density and ranking clusters by label disagreement.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
