// Package web embeds the dashboard template and its static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed css/*.css js/*.js
var staticFS embed.FS

// TemplatesFS returns the dashboard templates rooted at templates/.
func TemplatesFS() fs.FS {
	sub, _ := fs.Sub(templatesFS, "templates")
	return sub
}

// StaticFS returns the css/js assets, served under /static/.
func StaticFS() fs.FS {
	return staticFS
}
