package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/bsturgis0/zoti/internal/app"
	"github.com/bsturgis0/zoti/internal/document"
	"github.com/bsturgis0/zoti/internal/extract"
	"github.com/bsturgis0/zoti/internal/history"
	"github.com/bsturgis0/zoti/internal/ratelimit"
	"github.com/bsturgis0/zoti/internal/session"
	"github.com/bsturgis0/zoti/pkg/ai"
	"github.com/bsturgis0/zoti/pkg/domain"
	"github.com/bsturgis0/zoti/pkg/kv"
)

type echoGenerator struct{}

func (echoGenerator) GenerateChat(_ context.Context, _ []ai.Turn, message string) (string, error) {
	return "echo: " + message, nil
}

type textExtractor struct{}

func (textExtractor) Extract(_ string, data []byte) (extract.Result, error) {
	text := string(data)
	return extract.Result{Text: text, PageCount: strings.Count(text, "\f") + 1}, nil
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) *httptest.Server {
	t.Helper()
	redis := miniredis.RunT(t)
	store := kv.New(redis.Addr(), "")
	core, err := app.New(app.Config{
		Documents: document.NewStore(store, textExtractor{}),
		Sessions:  session.NewManager(store),
		History:   history.NewStore(store),
		Generator: echoGenerator{},
		Limiter:   limiter,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func chatForm(t *testing.T, text string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	messages := []domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: text, Timestamp: time.Now().UTC()},
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		t.Fatalf("marshal messages: %v", err)
	}
	if err := mw.WriteField("messages", string(payload)); err != nil {
		t.Fatalf("write field: %v", err)
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestChatIssuesIdentityCookie(t *testing.T) {
	srv := newTestServer(t, nil)
	body, contentType := chatForm(t, "hello", nil)
	resp, err := http.Post(srv.URL+"/api/chat", contentType, body)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	var out struct {
		Response string `json:"response"`
	}
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(out.Response, "echo: ") {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "zoti_uid" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected zoti_uid cookie on first contact")
	}
}

func TestChatReusesExistingIdentity(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	body, contentType := chatForm(t, "first message", nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(&http.Cookie{Name: "zoti_uid", Value: "stable-user"})
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == "zoti_uid" {
			t.Fatalf("no new cookie expected for a returning user, got %q", c.Value)
		}
	}

	// The saved turn is visible under the same identity.
	histReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/history", nil)
	histReq.AddCookie(&http.Cookie{Name: "zoti_uid", Value: "stable-user"})
	histResp, err := client.Do(histReq)
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	var hist struct {
		Messages []domain.Message `json:"messages"`
	}
	decodeBody(t, histResp, &hist)
	if len(hist.Messages) != 2 {
		t.Fatalf("expected the prior turn in history, got %d messages", len(hist.Messages))
	}
	if hist.Messages[0].Content != "first message" {
		t.Fatalf("unexpected first message: %q", hist.Messages[0].Content)
	}
}

func TestChatRateLimited(t *testing.T) {
	srv := newTestServer(t, ratelimit.NewMemoryLimiter(2, time.Minute))
	for i := 0; i < 2; i++ {
		body, contentType := chatForm(t, "hi", nil)
		resp, err := http.Post(srv.URL+"/api/chat", contentType, body)
		if err != nil {
			t.Fatalf("chat request %d: %v", i+1, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i+1, resp.StatusCode)
		}
	}
	body, contentType := chatForm(t, "hi", nil)
	resp, err := http.Post(srv.URL+"/api/chat", contentType, body)
	if err != nil {
		t.Fatalf("final chat request: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestChatMalformedMessagesIsFriendly(t *testing.T) {
	srv := newTestServer(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("messages", "{not json")
	mw.Close()
	resp, err := http.Post(srv.URL+"/api/chat", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	var out struct {
		Response string `json:"response"`
	}
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("malformed input should not 5xx, got %d", resp.StatusCode)
	}
	if !strings.Contains(out.Response, "couldn't read your messages") {
		t.Fatalf("expected friendly guidance, got %q", out.Response)
	}
}

func TestChatWithUpload(t *testing.T) {
	srv := newTestServer(t, nil)
	body, contentType := chatForm(t, "teach me", map[string]string{
		"deck.pdf": "a1\fa2\fa3",
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(&http.Cookie{Name: "zoti_uid", Value: "uploader"})
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	var out struct {
		Response string `json:"response"`
	}
	decodeBody(t, resp, &out)
	if !strings.Contains(out.Response, "[PDF: deck.pdf - Page 1 of 3]") {
		t.Fatalf("expected first-page prompt to reach the generator, got %q", out.Response)
	}

	listResp, err := http.Get(srv.URL + "/api/documents")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	var list struct {
		Documents []domain.Document `json:"documents"`
	}
	decodeBody(t, listResp, &list)
	if len(list.Documents) != 1 || list.Documents[0].Filename != "deck.pdf" {
		t.Fatalf("unexpected document list: %+v", list.Documents)
	}
	if list.Documents[0].TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", list.Documents[0].TotalPages)
	}
}

func TestHistoryMaterializesWelcome(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	var hist struct {
		Messages  []domain.Message       `json:"messages"`
		ActivePDF *domain.ActiveDocument `json:"activePdf"`
	}
	decodeBody(t, resp, &hist)
	if len(hist.Messages) != 1 || hist.Messages[0].Role != domain.RoleAssistant {
		t.Fatalf("expected a single welcome message, got %+v", hist.Messages)
	}
	if hist.ActivePDF != nil {
		t.Fatalf("no active document expected, got %+v", hist.ActivePDF)
	}
}

func TestHistoryClear(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	body, contentType := chatForm(t, "note this", nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(&http.Cookie{Name: "zoti_uid", Value: "u"})
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	delReq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/history", nil)
	delReq.AddCookie(&http.Cookie{Name: "zoti_uid", Value: "u"})
	delResp, err := client.Do(delReq)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	io.Copy(io.Discard, delResp.Body)
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", delResp.StatusCode)
	}

	getReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/history", nil)
	getReq.AddCookie(&http.Cookie{Name: "zoti_uid", Value: "u"})
	getResp, err := client.Do(getReq)
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	var hist struct {
		Messages []domain.Message `json:"messages"`
	}
	decodeBody(t, getResp, &hist)
	if len(hist.Messages) != 1 || !strings.Contains(hist.Messages[0].Content, "Welcome to Zoti") {
		t.Fatalf("expected a fresh welcome after clear, got %+v", hist.Messages)
	}
}

func TestHistoryExport(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/history/export")
	if err != nil {
		t.Fatalf("export request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected plain text export, got %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "No chat history found." {
		t.Fatalf("unexpected export for empty history: %q", data)
	}
}

func TestDeleteDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	body, contentType := chatForm(t, "teach me", map[string]string{"x.pdf": "only page"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(&http.Cookie{Name: "zoti_uid", Value: "u"})
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	listResp, err := http.Get(srv.URL + "/api/documents")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	var list struct {
		Documents []domain.Document `json:"documents"`
	}
	decodeBody(t, listResp, &list)
	if len(list.Documents) != 1 {
		t.Fatalf("expected one document, got %+v", list.Documents)
	}

	delReq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/documents/"+list.Documents[0].ID, nil)
	delResp, err := client.Do(delReq)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	io.Copy(io.Discard, delResp.Body)
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", delResp.StatusCode)
	}

	missingReq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/documents/"+list.Documents[0].ID, nil)
	missingResp, err := client.Do(missingReq)
	if err != nil {
		t.Fatalf("second delete request: %v", err)
	}
	io.Copy(io.Discard, missingResp.Body)
	missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a deleted document, got %d", missingResp.StatusCode)
	}
}

func TestDocumentDownloadUnavailableWithoutArchive(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	body, contentType := chatForm(t, "teach me", map[string]string{"x.pdf": "only page"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	listResp, err := http.Get(srv.URL + "/api/documents")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	var list struct {
		Documents []domain.Document `json:"documents"`
	}
	decodeBody(t, listResp, &list)
	if len(list.Documents) != 1 {
		t.Fatalf("expected one document, got %+v", list.Documents)
	}

	dlResp, err := http.Get(srv.URL + "/api/documents/" + list.Documents[0].ID + "/download")
	if err != nil {
		t.Fatalf("download request: %v", err)
	}
	io.Copy(io.Discard, dlResp.Body)
	dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without an archive, got %d", dlResp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
