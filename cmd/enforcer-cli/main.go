// Command enforcer-cli is the operator-facing CLI surface of spec.md §6:
// it exists to drive the four DS-at-parent edges (ds-submit/ds-seen/
// ds-retract/ds-gone) that need parent-side confirmation rather than a
// timer; SUBMIT->SUBMITTED is the one edge the engine advances on its own.
// Exit code is 0 on success, non-zero otherwise.
package main

import (
	"fmt"
	"os"

	"github.com/johanix/keyenforcer/cmd/enforcer-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
