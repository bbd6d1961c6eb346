// Package version holds build metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/banshee-data/autodrive/internal/version.Version=v1.2.0"
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns the one-line description printed by -version and logged at
// startup.
func String() string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("autodrive %s (%s, built %s)", Version, sha, BuildTime)
}
