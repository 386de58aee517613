// Package validation provides input validation for checklist requests and attachment
// uploads. Attachment checks run before anything is written to storage: the declared
// size, the file extension and the sniffed content of the first bytes must all agree
// with the allow-list, so a renamed executable is rejected even with a ".pdf" name.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultMaxAttachmentSize is the upload cap when none is configured (10MB)
	DefaultMaxAttachmentSize = 10 * 1024 * 1024

	// SniffLen is how many leading bytes are inspected to detect the content
	// type. Office Open XML formats need the first zip entries to be told apart.
	SniffLen = 3072

	maxFilenameLen = 200

	oleContentType = "application/x-ole-storage"
)

// ErrTooLarge is returned when an attachment exceeds the size cap
var ErrTooLarge = errors.New("attachment exceeds maximum size")

// fileType describes one allowed extension: the content type stored on the
// attachment row and the sniffed types its bytes may produce. A sniffed type
// also matches its more specific children (a .docx sniffs as a docx, which is
// a zip).
type fileType struct {
	contentType string
	sniffed     []string
}

var knownTypes = map[string]fileType{
	".jpg":  {"image/jpeg", []string{"image/jpeg"}},
	".jpeg": {"image/jpeg", []string{"image/jpeg"}},
	".png":  {"image/png", []string{"image/png"}},
	".gif":  {"image/gif", []string{"image/gif"}},
	".webp": {"image/webp", []string{"image/webp"}},
	".pdf":  {"application/pdf", []string{"application/pdf"}},
	".doc":  {"application/msword", []string{oleContentType}},
	".xls":  {"application/vnd.ms-excel", []string{oleContentType}},
	".ppt":  {"application/vnd.ms-powerpoint", []string{oleContentType}},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", []string{"application/zip"}},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", []string{"application/zip"}},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", []string{"application/zip"}},
	".odt":  {"application/vnd.oasis.opendocument.text", []string{"application/zip"}},
	".ods":  {"application/vnd.oasis.opendocument.spreadsheet", []string{"application/zip"}},
	".txt":  {"text/plain", []string{"text/plain"}},
	".csv":  {"text/csv", []string{"text/plain", "text/csv"}},
}

// KnownExtensions lists every extension the allow-list can contain, sorted
func KnownExtensions() []string {
	exts := make([]string, 0, len(knownTypes))
	for ext := range knownTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// AttachmentPolicy is the configured allow-list and size cap
type AttachmentPolicy struct {
	maxSize int64
	allowed map[string]fileType
}

// NewAttachmentPolicy builds a policy. An empty extension list allows every
// known type; unknown extensions are a configuration error.
func NewAttachmentPolicy(maxSize int64, extensions []string) (*AttachmentPolicy, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxAttachmentSize
	}
	p := &AttachmentPolicy{maxSize: maxSize, allowed: map[string]fileType{}}

	if len(extensions) == 0 {
		for ext, ft := range knownTypes {
			p.allowed[ext] = ft
		}
		return p, nil
	}

	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		ft, ok := knownTypes[ext]
		if !ok {
			return nil, fmt.Errorf("unsupported attachment extension %q (known: %s)", ext, strings.Join(KnownExtensions(), ", "))
		}
		p.allowed[ext] = ft
	}
	return p, nil
}

// MaxSize returns the upload cap in bytes
func (p *AttachmentPolicy) MaxSize() int64 {
	return p.maxSize
}

// CheckSize rejects empty files and files over the cap
func (p *AttachmentPolicy) CheckSize(size int64) error {
	if size == 0 {
		return fmt.Errorf("attachment is empty")
	}
	if size > p.maxSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, p.maxSize)
	}
	return nil
}

// CheckType validates the extension of filename and the sniffed content of
// head against the allow-list and returns the content type to store.
func (p *AttachmentPolicy) CheckType(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", fmt.Errorf("attachment %q has no file extension", filename)
	}
	ft, ok := p.allowed[ext]
	if !ok {
		return "", fmt.Errorf("file type %s is not allowed", ext)
	}

	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		for _, s := range ft.sniffed {
			if m.Is(s) {
				return ft.contentType, nil
			}
		}
	}
	return "", fmt.Errorf("file content (%s) does not match extension %s", baseType(detected.String()), ext)
}

// Inspect reads the leading bytes of r, validates them with CheckType and
// returns the content type with a reader that replays the whole stream and
// fails with ErrTooLarge once more than MaxSize bytes have been read.
func (p *AttachmentPolicy) Inspect(filename string, r io.Reader) (string, io.Reader, error) {
	head := make([]byte, SniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", nil, fmt.Errorf("attachment is empty")
	}

	contentType, err := p.CheckType(filename, head)
	if err != nil {
		return "", nil, err
	}
	return contentType, &capReader{r: io.MultiReader(bytes.NewReader(head), r), remaining: p.maxSize}, nil
}

type capReader struct {
	r         io.Reader
	remaining int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

// DetectContentType returns the most specific type mimetype recognises in
// data, without parameters
func DetectContentType(data []byte) string {
	return baseType(mimetype.Detect(data).String())
}

func baseType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// SanitizeFilename reduces a client supplied name to its base name with
// control and path characters removed, for display and Content-Disposition.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r), r == '/', r == '"':
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxFilenameLen-len(ext)], "") + ext
	}
	return name
}
