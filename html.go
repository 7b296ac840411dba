/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

func homePage(cfg *Config) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>body{font-family:system-ui,sans-serif;margin:2rem;}h1{margin-bottom:0.5rem;}a{color:inherit;}</style>`)
	htmlBody.WriteString(`<title>kitchenrush</title></head><body>`)
	htmlBody.WriteString(`<h1>kitchenrush</h1>`)
	htmlBody.WriteString(`<p>A frantic little cooking game. Drag the right ingredients together before the customers walk out.</p>`)
	htmlBody.WriteString(`<p><a href="` + cfg.prefix + `/kitchen">Open a new kitchen</a></p>`)
	htmlBody.WriteString(`</body></html>`)

	return htmlBody.String()
}

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(homePage(cfg)))
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
