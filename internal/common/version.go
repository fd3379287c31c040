package common

import "fmt"

// Version information, set at build time via -ldflags
var (
	Version = "dev"
	Build   = "unknown"
)

// GetFullVersion returns the version string including build identifier
func GetFullVersion() string {
	return fmt.Sprintf("%s (%s)", Version, Build)
}
