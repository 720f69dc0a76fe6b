// Package build holds version information stamped in at build time via
// -ldflags "-X github.com/drummonds/pdfbridge/internal/build.Version=...".
package build

// Version is the release version, "dev" for untagged builds.
var Version = "dev"
