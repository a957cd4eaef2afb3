package model

import "time"

// Collection is the store path holding every document record.
const Collection = "documents"

func DocumentPath(documentID string) string {
	return Collection + "/" + documentID
}

// Timestamp renders the current time the way records store it.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Member is one authorized collaborator. Email keeps the original,
// unsanitized address; the map key it lives under is the canonical form.
type Member struct {
	Email      string `json:"email"`
	AccessTime string `json:"accessTime"`
}

// WriterTag identifies the client and local write sequence that produced
// a content write, so the writer can tell its own echoes from remote
// edits.
type WriterTag struct {
	Client string `json:"client"`
	Seq    uint64 `json:"seq"`
}

type Document struct {
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Users        map[string]Member `json:"users"`
	LastModified string            `json:"lastModified"`
	LastWriter   *WriterTag        `json:"lastWriter,omitempty"`
}

// CatalogEntry is the read-only listing projection of a document.
type CatalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateDocRequest struct {
	Title string `json:"title"`
}

type CreateDocResponse struct {
	DocID string `json:"document_id"`
}

type UpdateDocRequest struct {
	Title string `json:"title"`
}

type InviteRequest struct {
	DocID string `json:"document_id"`
	Email string `json:"email"`
}

type MemberResponse struct {
	Key        string `json:"key"`
	Email      string `json:"email"`
	AccessTime string `json:"access_time"`
}
