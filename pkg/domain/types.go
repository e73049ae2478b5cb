package domain

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Document is the stored metadata for an ingested upload.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	TotalPages int       `json:"totalPages"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Page holds the extracted text of one document page.
type Page struct {
	DocumentID string `json:"documentId"`
	PageNumber int    `json:"pageNumber"`
	Text       string `json:"text"`
}

type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// SessionState is a user's navigation position. Both fields are nil until a
// document becomes active; PageNumber is set whenever DocumentID is.
type SessionState struct {
	DocumentID *string `json:"pdfId"`
	PageNumber *int    `json:"pageNumber"`
}

// Active reports whether a document is currently associated with the session.
func (s SessionState) Active() bool {
	return s.DocumentID != nil
}

// ActiveDocument is the navigation snapshot returned alongside chat history,
// parsed from the newest page marker in assistant output.
type ActiveDocument struct {
	Name        string `json:"name"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
}

// Attachment is an uploaded file carried with a turn.
type Attachment struct {
	Filename string
	Data     []byte
}
