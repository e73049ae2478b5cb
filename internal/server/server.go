// Package server exposes the HTTP API for the slides teacher.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bsturgis0/zoti/internal/app"
	"github.com/bsturgis0/zoti/internal/util"
	"github.com/bsturgis0/zoti/pkg/domain"
)

const (
	identityCookie    = "zoti_uid"
	identityCookieTTL = 365 * 24 * time.Hour

	defaultMaxUploadBytes = 20 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app            *app.App
	trusted        *util.TrustedProxies
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		trusted:        cfg.TrustedProxies,
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped with the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/chat", s.withUser(s.handleChat))
	s.mux.Handle("/api/history", s.withUser(s.handleHistory))
	s.mux.Handle("/api/history/export", s.withUser(s.handleHistoryExport))
	s.mux.Handle("/api/documents", s.withUser(s.handleDocuments))
	s.mux.Handle("/api/documents/", s.withUser(s.handleDocumentByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// withUser resolves the caller's identity from the zoti_uid cookie, issuing a
// fresh one on first contact. There are no accounts; the cookie is the user.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := ""
		if c, err := r.Cookie(identityCookie); err == nil {
			userID = strings.TrimSpace(c.Value)
		}
		if userID == "" {
			userID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     identityCookie,
				Value:    userID,
				Path:     "/",
				MaxAge:   int(identityCookieTTL.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next(w, r, userID)
	})
}

type chatResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusOK, chatResponse{Response: "I couldn't read your request. Please try sending your message again."})
		return
	}

	var messages []domain.Message
	if raw := r.FormValue("messages"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &messages); err != nil {
			writeJSON(w, http.StatusOK, chatResponse{Response: "I couldn't read your messages. Please try sending your message again."})
			return
		}
	}

	attachments, err := s.readUploads(r.MultipartForm)
	if err != nil {
		writeJSON(w, http.StatusOK, chatResponse{Response: "I had trouble reading your uploaded file. Could you try uploading it again?"})
		return
	}

	response, err := s.app.HandleTurn(r.Context(), app.Turn{
		UserID:      userID,
		RateKey:     util.ClientIP(r, s.trusted),
		Messages:    messages,
		Attachments: attachments,
	})
	if errors.Is(err, app.ErrRateLimited) {
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please wait a moment and try again.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: response})
}

func (s *Server) readUploads(form *multipart.Form) ([]domain.Attachment, error) {
	if form == nil {
		return nil, nil
	}
	var attachments []domain.Attachment
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, s.maxUploadBytes))
		f.Close()
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, domain.Attachment{Filename: fh.Filename, Data: data})
	}
	return attachments, nil
}

type historyResponse struct {
	Messages  []domain.Message       `json:"messages"`
	ActivePDF *domain.ActiveDocument `json:"activePdf,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		messages, active, err := s.app.History(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load chat history")
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{Messages: messages, ActivePDF: active})
	case http.MethodDelete:
		if err := s.app.ClearHistory(r.Context(), userID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to clear chat history")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	transcript, err := s.app.ExportHistory(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export chat history")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="chat-history.txt"`)
	_, _ = w.Write([]byte(transcript))
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Document{"documents": docs})
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, userID string) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id, ok := strings.CutSuffix(rest, "/download"); ok {
		s.handleDocumentDownload(w, r, id)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id := rest
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	ok, err := s.app.DeleteDocument(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleDocumentDownload redirects to a presigned link for the original
// upload. 404 covers both an unknown document and a deployment without an
// archive configured.
func (s *Server) handleDocumentDownload(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	url, err := s.app.DocumentDownloadURL(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create download link")
		return
	}
	if url == "" {
		writeError(w, http.StatusNotFound, "download not available")
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
