package buildinfo

import "fmt"

// Set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/swapbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/swapbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/swapbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// String renders the build identity for /version and vaultctl.
func String() string {
	if Date == "" {
		return fmt.Sprintf("swapbot %s (%s)", Version, Commit)
	}
	return fmt.Sprintf("swapbot %s (%s, built %s)", Version, Commit, Date)
}
