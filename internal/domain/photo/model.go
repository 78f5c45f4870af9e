package photo

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type Type string

const (
	TypeBefore Type = "before"
	TypeAfter  Type = "after"
)

func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeBefore, TypeAfter:
		return t, nil
	}
	return "", apperr.Validation("type must be before or after")
}

// Photo is the metadata of an uploaded image. The bytes live in the blob
// store under BlobRef.
type Photo struct {
	ID           uuid.UUID `json:"id"`
	UploadedBy   uuid.UUID `json:"uploadedBy"`
	PatientID    uuid.UUID `json:"patientId"`
	FileName     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	BlobRef      string    `json:"-"`
	Treatments   []string  `json:"treatments"`
	Type         Type      `json:"type"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// File is one uploaded part as received from the client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadRequest struct {
	PatientID  uuid.UUID
	Treatments []string
	Type       string
	Files      []File
}

// Content is a stored photo with its bytes.
type Content struct {
	Photo *Photo
	Data  []byte
	// Hash is the hex sha256 of Data.
	Hash string
}

// SplitTreatments parses the comma-separated treatments form field.
func SplitTreatments(csv string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range strings.Split(csv, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func isImageMIME(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "image/") && len(ct) > len("image/")
}
