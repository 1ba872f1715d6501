// Package ingest runs the document ingestion pipeline: validate uploads,
// extract text, chunk, embed, and persist vectors, tracking job progress
// along the way.
package ingest

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Upload limits.
const (
	MaxFileSizeBytes  = 50 * 1024 * 1024
	MaxFilesPerBatch  = 10
	MaxTotalSizeBytes = 500 * 1024 * 1024
)

// UploadFile is one file received for ingestion.
type UploadFile struct {
	Filename string
	Content  []byte
}

// allowedExtensions maps accepted extensions to the MIME types they may
// legitimately carry.
var allowedExtensions = map[string][]string{
	".pdf":      {"application/pdf"},
	".txt":      {"text/plain"},
	".md":       {"text/markdown", "text/plain"},
	".markdown": {"text/markdown", "text/plain"},
}

// FileValidator enforces batch upload limits and file type consistency.
type FileValidator struct{}

// ValidateFile checks one file: size cap, supported extension, and
// agreement between the extension and the sniffed content type.
func (FileValidator) ValidateFile(f UploadFile) error {
	if len(f.Content) == 0 {
		return ragerr.NewFileValidation("File is empty").WithDetail("filename", f.Filename)
	}
	if len(f.Content) > MaxFileSizeBytes {
		return ragerr.NewFileValidation(fmt.Sprintf(
			"File size %.1f MB exceeds %d MB limit",
			float64(len(f.Content))/(1024*1024), MaxFileSizeBytes/(1024*1024))).
			WithDetail("filename", f.Filename)
	}

	ext := strings.ToLower(filepath.Ext(f.Filename))
	accepted, ok := allowedExtensions[ext]
	if !ok {
		return ragerr.NewFileValidation("Unsupported file type; expected .pdf, .txt, or .md").
			WithDetail("filename", f.Filename)
	}

	detected := detectMIME(f)
	for _, mimeType := range accepted {
		if detected == mimeType {
			return nil
		}
	}
	return ragerr.NewFileValidation(fmt.Sprintf(
		"Content type %q does not match extension %q", detected, ext)).
		WithDetail("filename", f.Filename)
}

// ValidateBatch checks batch-level limits, then each file.
func (v FileValidator) ValidateBatch(files []UploadFile) error {
	if len(files) == 0 {
		return ragerr.NewFileValidation("No files provided")
	}
	if len(files) > MaxFilesPerBatch {
		return ragerr.NewFileValidation(fmt.Sprintf(
			"Maximum %d files per request, got %d", MaxFilesPerBatch, len(files)))
	}

	total := 0
	for _, f := range files {
		if err := v.ValidateFile(f); err != nil {
			return err
		}
		total += len(f.Content)
	}
	if total > MaxTotalSizeBytes {
		return ragerr.NewFileValidation(fmt.Sprintf(
			"Total payload %.1f MB exceeds %d MB limit",
			float64(total)/(1024*1024), MaxTotalSizeBytes/(1024*1024)))
	}
	return nil
}

// MIMEType returns the canonical MIME type for an accepted filename
// extension, or application/octet-stream for anything else.
func MIMEType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if accepted, ok := allowedExtensions[ext]; ok {
		return accepted[0]
	}
	return "application/octet-stream"
}

// detectMIME prefers the content signature over the filename.
func detectMIME(f UploadFile) string {
	if len(f.Content) >= 4 && string(f.Content[:4]) == "%PDF" {
		return "application/pdf"
	}

	ext := strings.ToLower(filepath.Ext(f.Filename))
	if ext == ".pdf" {
		// Extension claims PDF but the signature did not match.
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
