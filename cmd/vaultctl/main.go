// Command vaultctl inspects and migrates the private key vault offline.
package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/m3rciful/swapbot/core/logger"
)

func main() {
	memguard.CatchInterrupt()
	err := rootCmd().Execute()
	_ = logger.Shutdown()
	memguard.Purge()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
