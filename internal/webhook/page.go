package webhook

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

// pageTemplate is the minimal shell for the public unsubscribe pages. When a
// token is present the page renders a confirmation form posting back to the
// same URL.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { min-height: 100vh; display: flex; align-items: center; justify-content: center;
           background-color: #f9fafb; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; }
    .card { max-width: 480px; padding: 40px; background: white; border-radius: 8px;
            box-shadow: 0 1px 3px rgba(0,0,0,0.1); text-align: center; }
    h1 { font-size: 24px; margin-bottom: 16px; }
    p { color: #666; }
    textarea { width: 100%; margin: 16px 0; padding: 8px; border: 1px solid #ddd; border-radius: 4px; }
    button { padding: 10px 24px; background: #111; color: white; border: none; border-radius: 6px; cursor: pointer; }
  </style>
</head>
<body>
  <div class="card">
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
    {{if .Token}}
    <form method="POST" action="/unsubscribe/{{.Token}}">
      <textarea name="reason" rows="3" placeholder="Reason (optional)"></textarea>
      <button type="submit">Unsubscribe</button>
    </form>
    {{end}}
  </div>
</body>
</html>
`))

type pageData struct {
	Title   string
	Message string
	Token   string
}

func renderPage(w http.ResponseWriter, status int, title, message, token string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, pageData{Title: title, Message: message, Token: token}); err != nil {
		zap.L().Warn("unsubscribe page render failed", zap.Error(err))
	}
}
