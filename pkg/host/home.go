package host

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/morezero/operations-host/pkg/metadata"
)

// homePageTemplate is the HTML overview of operations and tasks (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Operations Host</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Operations Host</h1>
  <p class="meta">Version {{.Health.Version}}. <a href="{{.MetadataURL}}">Metadata document</a></p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Operations: <span class="stat">{{.Health.Operations}}</span></p>
    <p>Timestamp: {{.Health.Timestamp.Format "2006-01-02T15:04:05Z07:00"}}</p>
  </section>

  <section>
    <h2>Operations</h2>
    {{if not .Metadata.Operations}}
    <p>No operations registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Route</th><th>Parameters</th><th>Returns</th></tr>
      </thead>
      <tbody>
        {{range .Metadata.Operations}}
        <tr>
          <td>{{.Name}}</td>
          <td><code>{{$.Prefix}}{{.Route}}</code></td>
          <td>{{range $i, $p := .Parameters}}{{if $i}}, {{end}}{{$p.Name}} {{$p.Type}}{{if $p.HasDefaultValue}} = {{$p.DefaultValue}}{{end}}{{end}}</td>
          <td>{{.ReturnType}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Tasks</h2>
    {{if not .Health.Tasks}}
    <p>No tasks scheduled.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Schedule</th><th>Runs</th><th>Failures</th><th>Last status</th></tr>
      </thead>
      <tbody>
        {{range .Health.Tasks}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{if .CronSpec}}{{.CronSpec}}{{else}}every {{.Interval}}{{end}}</td>
          <td>{{.Runs}}</td>
          <td>{{.Failures}}</td>
          <td>{{if .LastError}}<span class="error">{{.LastError}}</span>{{else}}{{.LastStatus}}{{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type homeData struct {
	Health      *Health
	Metadata    *metadata.Document
	Prefix      string
	MetadataURL string
}

func (h *Host) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	prefix := ""
	if app := strings.Trim(h.cfg.ApplicationPath, "/"); app != "" {
		prefix = "/" + app
	}
	return func(w http.ResponseWriter, r *http.Request) {
		data := homeData{
			Health:      h.Health(),
			Metadata:    metadata.Build(h.registry, h.cfg.Version),
			Prefix:      prefix,
			MetadataURL: path.Join("/", prefix, h.cfg.MetadataPath),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
