package router

import (
	"embed"
	"html/template"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.gohtml"))
