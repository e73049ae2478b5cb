// Package app orchestrates a chat turn: rate limiting, document ingestion,
// page navigation, search augmentation, generation with retry, and
// persistence of both sides of the exchange.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsturgis0/zoti/internal/document"
	"github.com/bsturgis0/zoti/internal/history"
	"github.com/bsturgis0/zoti/internal/nav"
	"github.com/bsturgis0/zoti/internal/ratelimit"
	"github.com/bsturgis0/zoti/internal/session"
	"github.com/bsturgis0/zoti/internal/util"
	"github.com/bsturgis0/zoti/pkg/ai"
	"github.com/bsturgis0/zoti/pkg/domain"
	"github.com/bsturgis0/zoti/pkg/search"
	"github.com/bsturgis0/zoti/pkg/storage"
)

// ErrRateLimited rejects a turn before any other processing.
var ErrRateLimited = errors.New("rate limit exceeded")

const (
	generateMaxAttempts  = 3
	generateInitialDelay = time.Second

	fallbackResponse = "I'm currently experiencing technical difficulties and couldn't process your request. Please try again in a few moments, or ask a different question."

	searchFootnote = "\n\n_I've searched the web to provide you with the most up-to-date information on this topic._"
	navFootnote    = "\n\n_You can navigate through the PDF by saying \"next page\", \"previous page\", or \"go to page X\"._"
)

// Config wires the orchestrator's collaborators. Searcher and Archive are
// optional; a nil Limiter disables rate limiting (tests only).
type Config struct {
	Documents *document.Store
	Sessions  *session.Manager
	History   *history.Store
	Generator ai.ChatGenerator
	Searcher  search.Provider
	Archive   storage.Archive
	Limiter   ratelimit.Limiter

	// HistoryLimit caps how many prior messages feed the generator.
	HistoryLimit int
}

// App is the per-turn request orchestrator.
type App struct {
	documents    *document.Store
	sessions     *session.Manager
	history      *history.Store
	generator    ai.ChatGenerator
	searcher     search.Provider
	archive      storage.Archive
	limiter      ratelimit.Limiter
	historyLimit int
}

// New validates required collaborators and constructs the orchestrator.
func New(cfg Config) (*App, error) {
	if cfg.Documents == nil || cfg.Sessions == nil || cfg.History == nil {
		return nil, fmt.Errorf("document, session and history stores are required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("chat generator is required")
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = history.DefaultFetchLimit
	}
	return &App{
		documents:    cfg.Documents,
		sessions:     cfg.Sessions,
		history:      cfg.History,
		generator:    cfg.Generator,
		searcher:     cfg.Searcher,
		archive:      cfg.Archive,
		limiter:      cfg.Limiter,
		historyLimit: historyLimit,
	}, nil
}

// Turn is one incoming request: the caller's identity, the rate-limit key,
// the prior conversation as the client sees it, and any uploads.
type Turn struct {
	UserID      string
	RateKey     string
	Messages    []domain.Message
	Attachments []domain.Attachment
}

// HandleTurn runs the full pipeline and returns the assistant's response
// text. Recoverable problems come back as friendly response text; only rate
// limiting surfaces as an error.
func (a *App) HandleTurn(ctx context.Context, turn Turn) (string, error) {
	if a.limiter != nil && !a.limiter.Allow(turn.RateKey) {
		return "", ErrRateLimited
	}
	logger := util.LoggerFromContext(ctx)

	lastUser := lastUserMessage(turn.Messages)
	if lastUser == nil {
		return "No user message found. Please provide a message to continue.", nil
	}
	userMessage := lastUser.Content
	if strings.TrimSpace(userMessage) == "" {
		userMessage = "Hello"
	}

	// Ingest uploads; the most recently processed becomes the active document.
	uploaded := false
	for _, att := range turn.Attachments {
		doc, err := a.documents.Ingest(ctx, att.Filename, att.Data)
		if err != nil {
			logger.Error("ingestion failed", "filename", att.Filename, "err", err)
			return "I had trouble processing your PDF file. Could you try uploading it again or try a different file?", nil
		}
		if err := a.sessions.SetActiveDocument(ctx, turn.UserID, doc.ID); err != nil {
			logger.Error("failed to activate document", "document_id", doc.ID, "err", err)
			return "I had trouble processing your PDF file. Could you try uploading it again or try a different file?", nil
		}
		a.archiveUpload(ctx, doc.ID, att)
		uploaded = true
		logger.Info("document ingested", "filename", att.Filename, "document_id", doc.ID, "total_pages", doc.TotalPages)
	}

	// Search augmentation: best effort, never fatal.
	enhancedMessage := userMessage
	searched := false
	if a.searcher != nil && search.NeedsSearch(userMessage) {
		resp, err := a.searcher.Search(ctx, userMessage, search.Options{IncludeAnswer: true})
		if err != nil {
			logger.Warn("web search failed, continuing without augmentation", "err", err)
		} else if len(resp.Results) > 0 {
			enhancedMessage = enhanceWithResults(userMessage, resp)
			searched = true
		}
	}

	// Resolve navigation against the session; with no explicit intent the
	// current page still rides along so the generator has page context.
	pageContent := ""
	navigated := false
	state, err := a.sessions.Get(ctx, turn.UserID)
	if err != nil {
		logger.Warn("failed to read session", "err", err)
	}
	if state.Active() {
		switch action := nav.Classify(userMessage); action.Kind {
		case nav.NextPage:
			pageContent = a.goToNextPage(ctx, turn.UserID)
			navigated = true
		case nav.PreviousPage:
			pageContent = a.goToPreviousPage(ctx, turn.UserID)
			navigated = true
		case nav.GoToPage:
			pageContent = a.goToPage(ctx, turn.UserID, action.Page)
			navigated = true
		default:
			pageContent = a.currentPage(ctx, turn.UserID)
		}
	}

	// Model history is the log before this turn's user message lands.
	prior, err := a.history.Fetch(ctx, turn.UserID, a.historyLimit)
	if err != nil {
		logger.Warn("failed to load chat history", "err", err)
	}

	userRecord := domain.Message{
		ID:        lastUser.ID,
		Role:      domain.RoleUser,
		Content:   userMessage,
		Timestamp: time.Now().UTC(),
	}
	if userRecord.ID == "" {
		userRecord.ID = util.NewID()
	}
	if err := a.history.Save(ctx, turn.UserID, userRecord); err != nil {
		logger.Error("failed to save user message", "err", err)
	}

	prompt := composePrompt(userMessage, enhancedMessage, pageContent, uploaded, navigated, searched)
	responseText, err := retryWithBackoff(ctx, generateMaxAttempts, generateInitialDelay, func() (string, error) {
		return a.generator.GenerateChat(ctx, toTurns(prior), prompt)
	})
	if err != nil {
		logger.Error("generation failed after retries", "err", err)
		return fallbackResponse, nil
	}

	// The response itself must carry the page marker so clients (and the
	// history snapshot) can recover navigation position without trusting the
	// generator to echo it.
	if marker := markerRe.FindString(pageContent); marker != "" && !strings.Contains(responseText, marker) {
		responseText += "\n\n" + marker
	}
	if searched {
		responseText += searchFootnote
	}
	if navigated {
		responseText += navFootnote
	}

	assistantRecord := domain.Message{
		ID:        util.NewID(),
		Role:      domain.RoleAssistant,
		Content:   responseText,
		Timestamp: time.Now().UTC(),
	}
	if err := a.history.Save(ctx, turn.UserID, assistantRecord); err != nil {
		logger.Error("failed to save assistant message", "err", err)
	}
	return responseText, nil
}

// composePrompt picks what the generator sees for this turn. Fresh uploads
// frame the first page; navigation and ambient page context append it; plain
// questions go through as-is (search-enhanced when available).
func composePrompt(userMessage, enhancedMessage, pageContent string, uploaded, navigated, searched bool) string {
	if uploaded && pageContent != "" {
		return fmt.Sprintf("I've loaded the PDF you uploaded. Here's the content of the first page:\n\n%s\n\nI'll help you understand this content. Let me know if you want to navigate to other pages.", pageContent)
	}
	if navigated || pageContent != "" {
		return fmt.Sprintf("%s\n\n%s", userMessage, pageContent)
	}
	if searched {
		return enhancedMessage
	}
	return userMessage
}

func enhanceWithResults(userMessage string, resp search.Response) string {
	var sb strings.Builder
	sb.WriteString(userMessage)
	sb.WriteString("\n\n[SEARCH RESULTS] I've searched the web for information related to your question. Here's what I found:\n\n")
	if resp.Answer != "" {
		fmt.Fprintf(&sb, "Summary: %s\n\n", resp.Answer)
	}
	sb.WriteString("Sources:\n")
	for i, result := range resp.Results {
		snippet := result.Content
		if len(snippet) > 300 {
			snippet = snippet[:300] + "..."
		}
		fmt.Fprintf(&sb, "%d. %q - %s\n%s\n\n", i+1, result.Title, result.URL, snippet)
	}
	return sb.String()
}

func (a *App) archiveUpload(ctx context.Context, documentID string, att domain.Attachment) {
	if a.archive == nil {
		return
	}
	if err := a.archive.Put(ctx, documentID, att.Filename, att.Data); err != nil {
		util.LoggerFromContext(ctx).Warn("failed to archive upload",
			"document_id", documentID, "filename", att.Filename, "err", err)
	}
}

func lastUserMessage(messages []domain.Message) *domain.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return &messages[i]
		}
	}
	return nil
}

func toTurns(messages []domain.Message) []ai.Turn {
	turns := make([]ai.Turn, 0, len(messages))
	for _, msg := range messages {
		role := "model"
		if msg.Role == domain.RoleUser {
			role = "user"
		}
		turns = append(turns, ai.Turn{Role: role, Text: msg.Content})
	}
	return turns
}

// History returns the user's chronological messages plus the active-document
// snapshot parsed from the newest assistant marker. An empty log materializes
// the welcome message first.
func (a *App) History(ctx context.Context, userID string) ([]domain.Message, *domain.ActiveDocument, error) {
	messages, err := a.history.FetchOrWelcome(ctx, userID, a.historyLimit)
	if err != nil {
		return nil, nil, err
	}
	state, err := a.sessions.Get(ctx, userID)
	if err != nil || !state.Active() {
		return messages, nil, nil
	}
	return messages, ActiveDocumentFromMessages(messages), nil
}

// ClearHistory wipes the log and re-seeds the welcome message.
func (a *App) ClearHistory(ctx context.Context, userID string) error {
	if err := a.history.Clear(ctx, userID); err != nil {
		return err
	}
	_, err := a.history.FetchOrWelcome(ctx, userID, 1)
	return err
}

// ExportHistory renders the transcript.
func (a *App) ExportHistory(ctx context.Context, userID string) (string, error) {
	return a.history.Export(ctx, userID)
}

// ListDocuments returns all stored documents.
func (a *App) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return a.documents.List(ctx)
}

// DeleteDocument removes a document, its pages and its archived upload; the
// user's session is cleared when it pointed at the deleted document.
func (a *App) DeleteDocument(ctx context.Context, userID, documentID string) (bool, error) {
	doc, err := a.documents.Get(ctx, documentID)
	if errors.Is(err, document.ErrDocumentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, err := a.documents.Delete(ctx, documentID)
	if err != nil || !ok {
		return ok, err
	}
	if a.archive != nil {
		if err := a.archive.Delete(ctx, documentID, doc.Filename); err != nil {
			util.LoggerFromContext(ctx).Warn("failed to delete archived upload",
				"document_id", documentID, "err", err)
		}
	}
	state, err := a.sessions.Get(ctx, userID)
	if err == nil && state.Active() && *state.DocumentID == documentID {
		if err := a.sessions.Clear(ctx, userID); err != nil {
			util.LoggerFromContext(ctx).Warn("failed to clear session after delete", "err", err)
		}
	}
	return true, nil
}

// downloadURLExpiry bounds how long a presigned download link stays valid.
const downloadURLExpiry = 15 * time.Minute

// DocumentDownloadURL returns a presigned link to the original upload, or ""
// when no archive is configured or the document is unknown.
func (a *App) DocumentDownloadURL(ctx context.Context, documentID string) (string, error) {
	if a.archive == nil {
		return "", nil
	}
	doc, err := a.documents.Get(ctx, documentID)
	if errors.Is(err, document.ErrDocumentNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return a.archive.PresignGet(ctx, documentID, doc.Filename, downloadURLExpiry)
}
