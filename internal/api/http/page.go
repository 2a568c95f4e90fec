package http

import (
	"bytes"
	"html/template"
	"net/http"
)

// PageConfig controls the terminal page.
type PageConfig struct {
	Title string
	// Base is the normalized mount path, "" for the root.
	Base string
	// AllowIframe permits embedding the page in other sites.
	AllowIframe bool
}

type key struct {
	Label  string
	Action string
	ID     string
}

var onscreenKeys = []key{
	{Label: "Esc", Action: "pressESC"},
	{Label: "▲", Action: "pressUP"},
	{Label: "Tab", Action: "pressTAB"},
	{Label: "◀", Action: "pressLEFT"},
	{Label: "▼", Action: "pressDOWN"},
	{Label: "▶", Action: "pressRIGHT"},
	{Label: "Ctl", Action: "toggleCTRL", ID: "onscreen-ctrl"},
	{Label: "Alt", Action: "toggleALT", ID: "onscreen-alt"},
	{Label: "Ent", Action: "pressENTER"},
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta http-equiv="X-UA-Compatible" content="IE=edge">
    <meta name="viewport" content="width=device-width, initial-scale=1.0, user-scalable=no">
    <link rel="icon" type="image/x-icon" href="{{.Base}}/client/favicon.ico">
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="{{.Base}}/client/wetty.css" />
  </head>
  <body>
    <div id="overlay">
      <div class="error">
        <div id="msg"></div>
        <input type="button" onclick="location.reload();" value="reconnect" />
      </div>
    </div>
    <div id="options">
      <a class="toggler" href="#" alt="Toggle options"><i class="fas fa-cogs"></i></a>
      <iframe class="editor" src="{{.Base}}/client/xterm_config/index.html"></iframe>
    </div>
    <div id="functions">
      <a class="toggler" href="#" alt="Toggle keys" onclick="window.toggleFunctions()"><i class="fas fa-keyboard"></i></a>
      <div class="onscreen-buttons">
{{- range .Keys}}
        <a href="#"{{if .ID}} id="{{.ID}}"{{end}} alt="{{.Label}}" data-action="{{.Action}}"><div>{{.Label}}</div></a>
{{- end}}
      </div>
    </div>
    <div id="terminal" data-socket="{{.Base}}/socket"></div>
    <script type="module" src="{{.Base}}/client/wetty.js"></script>
  </body>
</html>
`))

// Page renders the terminal page once and serves it.
type Page struct {
	body        []byte
	allowIframe bool
}

// NewPage renders the page for cfg.
func NewPage(cfg PageConfig) (*Page, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		PageConfig
		Keys []key
	}{cfg, onscreenKeys})
	if err != nil {
		return nil, err
	}
	return &Page{body: buf.Bytes(), allowIframe: cfg.AllowIframe}, nil
}

// ServeHTTP writes the page.
func (p *Page) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	if !p.allowIframe {
		h.Set("X-Frame-Options", "SAMEORIGIN")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.body)
}
