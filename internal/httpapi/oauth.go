package httpapi

import (
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const stateCookie = "oauth_state"

var tokenPage = template.Must(template.New("token").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Google authorization</title></head>
<body>
{{if .Error}}
<h1>Authorization failed</h1>
<p>{{.Error}}</p>
{{else if .RefreshToken}}
<h1>Authorization complete</h1>
<p>Set this value as <code>GOOGLE_REFRESH_TOKEN</code> and restart the service:</p>
<pre>{{.RefreshToken}}</pre>
{{else}}
<h1>No refresh token returned</h1>
<p>Google did not issue a refresh token. Revoke the app's access in your Google account and try again.</p>
{{end}}
</body>
</html>
`))

type tokenPageData struct {
	RefreshToken string
	Error        string
}

// handleAuthGoogle starts the offline consent flow that mints a refresh
// token for the archive.
func (s *Server) handleAuthGoogle(w http.ResponseWriter, r *http.Request) {
	if s.opts.OAuth == nil {
		http.NotFound(w, r)
		return
	}
	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth-google",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	url := s.opts.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.opts.OAuth == nil {
		http.NotFound(w, r)
		return
	}
	reqLog := s.log.WithRequest(r).WithField("handler", "auth_callback")
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		reqLog.WithField("error", e).Warn("consent denied")
		renderTokenPage(w, http.StatusBadRequest, tokenPageData{Error: e})
		return
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		reqLog.Warn("oauth state mismatch")
		renderTokenPage(w, http.StatusBadRequest, tokenPageData{Error: "invalid oauth state"})
		return
	}
	code := q.Get("code")
	if code == "" {
		renderTokenPage(w, http.StatusBadRequest, tokenPageData{Error: "missing authorization code"})
		return
	}

	tok, err := s.opts.OAuth.Exchange(r.Context(), code)
	if err != nil {
		reqLog.WithField("error", err.Error()).Error("token exchange failed")
		renderTokenPage(w, http.StatusBadGateway, tokenPageData{Error: err.Error()})
		return
	}
	reqLog.WithField("has_refresh_token", tok.RefreshToken != "").Info("token exchange completed")
	renderTokenPage(w, http.StatusOK, tokenPageData{RefreshToken: tok.RefreshToken})
}

func renderTokenPage(w http.ResponseWriter, status int, data tokenPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = tokenPage.Execute(w, data)
}
