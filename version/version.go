package version

import "runtime"

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	Arch = runtime.GOARCH
	OS   = runtime.GOOS
)
