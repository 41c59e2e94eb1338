// Package web embeds the dashboard UI so the server ships as a single binary.
package web

import (
	"embed"
	"net/http"
)

// Files contains the embedded dashboard assets.
//
// Keep this broad enough so web page updates are automatically packaged in binaries.
//
//go:embed index.html app.js style.css
var Files embed.FS

// Handler serves the embedded UI.
func Handler() http.Handler {
	return http.FileServerFS(Files)
}
