// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package web

import (
	"embed"
	"html/template"

	"github.com/samber/oops"
)

//go:embed templates/*.html
var templateFS embed.FS

// parseTemplates loads the embedded HTML views. Templates are addressed
// by file name (login.html, signup.html, home.html).
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, oops.
			Code("TEMPLATE_PARSE_FAILED").
			In("web").
			Wrapf(err, "parsing embedded templates")
	}
	return tmpl, nil
}
