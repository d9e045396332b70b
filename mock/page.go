// ABOUTME: Read-only HTML session page rendered from the stored snapshot.
// ABOUTME: The final analysis markdown is converted with goldmark; raw HTML is escaped.
package mock

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"

	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

var sessionPage = template.Must(template.New("session").Parse(`<!DOCTYPE html>
<html>
<head><title>Session {{.Session.SessionID}}</title></head>
<body>
<h1>{{.Session.AlertType}} <small>{{.Session.Status}}</small></h1>
<ul>
{{range .Stages}}<li>{{.StageName}} #{{.StageIndex}} &mdash; {{.Status}}</li>
{{end}}</ul>
{{if .Analysis}}<hr>{{.Analysis}}{{end}}
</body>
</html>
`))

type sessionPageData struct {
	Session  timeline.Session
	Stages   []timeline.StageExecution
	Analysis template.HTML
}

func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	st, ok := s.sessions[id]
	var data sessionPageData
	if ok {
		data = sessionPageData{
			Session:  st.session,
			Stages:   append([]timeline.StageExecution(nil), st.stages...),
			Analysis: markdownToHTML(st.session.Result),
		}
	}
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := sessionPage.Execute(w, data); err != nil {
		s.logger.Printf("rendering session page id=%s err=%v", id, err)
	}
}

// markdownToHTML converts the final analysis to HTML. Goldmark escapes raw
// HTML by default, which is what a page fed backend text wants.
func markdownToHTML(input string) template.HTML {
	if input == "" {
		return ""
	}
	var buf bytes.Buffer
	md := goldmark.New()
	if err := md.Convert([]byte(input), &buf); err != nil {
		return template.HTML(fmt.Sprintf("<pre>%s</pre>", template.HTMLEscapeString(input)))
	}
	return template.HTML(buf.String())
}
