package web

import (
	"embed"
)

// staticFiles holds the control page and its assets.
// The final binary includes all files under static/.
//
//go:embed static/*
var staticFiles embed.FS
