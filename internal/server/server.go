// Package server exposes the inbox as a local JSON API, an HTML digest
// page and Prometheus metrics.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/aggregate"
	"github.com/TobiSchelling/Supernova/internal/credentials"
	"github.com/TobiSchelling/Supernova/internal/inbox"
	"github.com/TobiSchelling/Supernova/internal/report"
	"github.com/TobiSchelling/Supernova/internal/social"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const maxBodyBytes = 1 << 20

// Server is the HTTP front end of the inbox service.
type Server struct {
	svc    *inbox.Service
	pages  map[string]*template.Template
	mux    *http.ServeMux
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new Server.
func New(svc *inbox.Service, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so its "content" block does not
	// clash with other pages.
	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{svc: svc, pages: pages, mux: http.NewServeMux(), logger: logger, now: time.Now}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /{$}", s.handleIndex)

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.Handle("POST /api/sync", s.guard(s.handleSync))
	s.mux.HandleFunc("GET /api/comments", s.handleComments)
	s.mux.HandleFunc("GET /api/comments/{id}", s.handleComment)
	s.mux.HandleFunc("GET /api/comments/{id}/replies", s.handleReplies)
	s.mux.Handle("POST /api/comments/{id}/reply", s.guard(s.handleReply))
	s.mux.Handle("POST /api/comments/{id}/handled", s.guard(s.handleHandled))
	s.mux.Handle("POST /api/platforms/{platform}/connect", s.guard(s.handleConnect))
	s.mux.Handle("POST /api/platforms/{platform}/disconnect", s.guard(s.handleDisconnect))
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.Handle("DELETE /api/state", s.guard(s.handleClear))
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.Handle("PUT /api/settings", s.guard(s.handlePutSettings))
	s.mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	s.mux.HandleFunc("GET /api/templates", s.handleTemplates)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.ExportSnapshot()
	digest := report.Compose(report.Input{
		Comments:    snap.Comments,
		Stats:       snap.Stats,
		Platforms:   snap.Platforms,
		GeneratedAt: s.now(),
	})
	s.render(w, "index.html", map[string]any{
		"Digest":    digest,
		"Connected": s.svc.ConnectedPlatforms(),
	})
}

type statusResponse struct {
	Platforms map[social.Platform]credentials.Status `json:"platforms"`
	Connected []social.Platform                      `json:"connected"`
	Stats     aggregate.Stats                        `json:"stats"`
	Settings  inbox.Settings                         `json:"settings"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	platforms := make(map[social.Platform]credentials.Status, len(social.Platforms))
	for _, p := range social.Platforms {
		platforms[p] = s.svc.Status(p)
	}
	connected := s.svc.ConnectedPlatforms()
	if connected == nil {
		connected = []social.Platform{}
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Platforms: platforms,
		Connected: connected,
		Stats:     s.svc.Stats(),
		Settings:  s.svc.Settings(),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.SyncAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := aggregate.Filter{
		Category: social.Category(q.Get("category")),
		Priority: social.Priority(q.Get("priority")),
		Status:   q.Get("status"),
		Query:    q.Get("q"),
	}
	if v := q.Get("platform"); v != "" {
		p, err := social.ParsePlatform(v)
		if err != nil {
			s.writeError(w, err)
			return
		}
		f.Platform = p
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, social.Validationf("", "limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}
	s.writeJSON(w, http.StatusOK, s.svc.Comments(f))
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.svc.Comment(id)
	if !ok {
		s.writeError(w, &social.Error{Kind: social.KindNotFound, Message: fmt.Sprintf("comment %q not found", id)})
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	logs, err := s.svc.Replies(r.PathValue("id"), 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, logs)
}

type replyRequest struct {
	Text     string `json:"text"`
	Template string `json:"template"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	text := req.Text
	if req.Template != "" {
		t, err := s.svc.ReplyTemplate(req.Template)
		if err != nil {
			s.writeError(w, err)
			return
		}
		text = t
	}
	res, err := s.svc.ReplyToComment(r.Context(), r.PathValue("id"), text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHandled(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.MarkHandled(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	p, err := social.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var creds social.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.svc.ConnectPlatform(r.Context(), p, creds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type disconnectRequest struct {
	AccountID string `json:"accountId"`
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	p, err := social.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req disconnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.svc.DisconnectPlatform(p, req.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.ExportSnapshot()
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="supernova-export-%s.json"`, snap.ExportedAt.Format("2006-01-02")))
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearAllState(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	next := s.svc.Settings()
	if err := decodeJSON(w, r, &next); err != nil {
		s.writeError(w, err)
		return
	}
	saved, err := s.svc.UpdateSettings(next)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Notifications())
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string)
	for _, name := range inbox.TemplateNames() {
		out[name], _ = s.svc.ReplyTemplate(name)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// guard restricts a state-changing handler to same-origin callers that
// send JSON.
func (s *Server) guard(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sameOrigin(r) {
			s.logger.Warn("rejected cross-origin request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("origin", r.Header.Get("Origin")))
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "cross-origin request rejected"})
			return
		}
		if r.Method != http.MethodDelete {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				s.writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{
					Error: "request body must be application/json",
					Kind:  social.KindValidation,
				})
				return
			}
		}
		next(w, r)
	})
}

// sameOrigin reports whether r comes from this server's own origin or
// from a non-browser client.
func sameOrigin(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
	default:
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return social.Validationf("", "invalid request body: %v", err)
	}
	return nil
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  social.Kind `json:"kind,omitempty"`
	Hint  string      `json:"hint,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind social.Kind) int {
	switch kind {
	case social.KindValidation:
		return http.StatusBadRequest
	case social.KindAuth:
		return http.StatusUnauthorized
	case social.KindPermission:
		return http.StatusForbidden
	case social.KindNotFound:
		return http.StatusNotFound
	case social.KindNotConnected:
		return http.StatusConflict
	case social.KindRateLimit:
		return http.StatusTooManyRequests
	case social.KindProvider:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	e, ok := social.AsError(err)
	if !ok {
		s.logger.Error("request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	status := statusFor(e.Kind)
	resp := errorResponse{Error: err.Error(), Kind: e.Kind, Hint: e.Hint}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		resp.Error = "internal server error"
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", zap.Error(err))
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error("rendering template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, svc *inbox.Service, port int, logger *zap.Logger) error {
	srv, err := New(svc, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("server listening", zap.String("url", "http://"+addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
