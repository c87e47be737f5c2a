// Command strukctl runs maintenance and reporting tasks against the receipt ledger.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
