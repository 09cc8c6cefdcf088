// Package version holds the build-time version string, set via -ldflags by
// the mage Build target.
package version

var version = "dev"

// Value returns the build's version string.
func Value() string {
	return version
}
