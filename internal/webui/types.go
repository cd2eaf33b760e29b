package webui

// ChatInfo is the subset of a chat the archivist reads.
type ChatInfo struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updated_at"`
	CreatedAt int64  `json:"created_at"`
}

type FileMeta struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type FileResponse struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Meta     FileMeta `json:"meta"`
}

// DisplayName is the name the file was uploaded under. Older servers report
// it as filename, newer ones only in meta.
func (f FileResponse) DisplayName() string {
	if f.Filename != "" {
		return f.Filename
	}
	return f.Meta.Name
}

type Knowledge struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Files       []FileResponse `json:"files"`
}

// LookupStatus separates a chat that is gone from one that could not be
// checked. Only NotFound may trigger reaping.
type LookupStatus int

const (
	// Unavailable means no credential got a definitive answer.
	Unavailable LookupStatus = iota
	Found
	NotFound
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

// LinkAction says how AddToKnowledge placed the file.
type LinkAction string

const (
	LinkAdded   LinkAction = "added"
	LinkUpdated LinkAction = "updated"
)
