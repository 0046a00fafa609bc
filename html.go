/*
Copyright © 2026 rousseya
*/

package main

import (
	"html/template"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// The HTML surface is intentionally thin: three pages that load the
// client bundle from /static and talk to /ws. All game rendering
// happens client-side.

const pageShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="/static/app.css">
</head>
<body>
<div id="root" data-page="{{.Page}}"{{if .GameID}} data-game-id="{{.GameID}}" data-role="{{.Role}}"{{end}}></div>
<script src="/static/app.js"></script>
</body>
</html>
`

var pageTemplate = template.Must(template.New("page").Parse(pageShell))

type pageData struct {
	Title  string
	Page   string
	GameID string
	Role   string
}

func renderPage(cfg *Config, w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	securityHeaders(cfg, w)

	if err := pageTemplate.Execute(w, data); err != nil {
		warnf("SERVE: Failed to render %s page: %v", data.Page, err)
	}
}

func serveIndexPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		renderPage(cfg, w, pageData{Title: "Rahoot", Page: "index"})
	}
}

func serveManagerPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		renderPage(cfg, w, pageData{Title: "Rahoot Manager", Page: "manager"})
	}
}

func serveGamePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		role := r.URL.Query().Get("role")
		if role != "manager" {
			role = "player"
		}

		renderPage(cfg, w, pageData{
			Title:  "Rahoot",
			Page:   "game",
			GameID: p.ByName("game_id"),
			Role:   role,
		})
	}
}
