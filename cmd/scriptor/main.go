// Command scriptor runs JavaScript and TypeScript programs with host modules
// and sandboxed wasm transform plugins.
//
//	scriptor run main.ts [arg]       run an entry module
//	scriptor run --watch main.ts     re-run when files in its directory change
//	scriptor eval '1 + 1'            evaluate an expression
//	scriptor repl                    interactive session
//	scriptor plugins                 list loaded plugins
//	scriptor init                    create the configuration root
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
