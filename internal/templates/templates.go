package templates

import "embed"

//go:embed scripts
var Scripts embed.FS
