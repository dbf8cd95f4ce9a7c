// Command imwgctl is the operator CLI: schema migrations, one-off
// classifications and audit trail exports.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
