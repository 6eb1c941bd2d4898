// Package buildinfo holds values stamped at link time.
package buildinfo

// Version is set with -ldflags "-X github.com/silver2dream/devmend/internal/buildinfo.Version=..."
var Version = "dev"
