// Package attachment handles the files a patient hands over during intake:
// ID card photos, selfies, signatures and disability letters. Files travel
// as data URIs; this package parses them, enforces per-category content-type
// and size rules, and keeps an in-memory copy per registration session.
package attachment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidDataURI     = errors.New("invalid data URI")
	ErrEmptyFile          = errors.New("file is empty")
	ErrUnknownCategory    = errors.New("unknown attachment category")
	ErrCorruptImage       = errors.New("image data cannot be decoded")
)

// MaxFileSize is the maximum decoded attachment size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// MaxImagePixels bounds the declared dimensions of a decodable image.
const MaxImagePixels = 50_000_000

// Category identifies what an attachment is used for.
type Category string

const (
	CategoryIDCard           Category = "id-card"
	CategorySelfie           Category = "selfie"
	CategorySignature        Category = "signature"
	CategoryDisabilityLetter Category = "disability-letter"
)

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
	"image/heic": true,
}

// decodableTypes are the image types whose header is checked on upload.
// HEIC has no decoder and is accepted on its content type alone.
var decodableTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
}

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// AllowedContentTypes returns the MIME types accepted for a category.
func AllowedContentTypes(c Category) (map[string]bool, error) {
	switch c {
	case CategoryIDCard, CategorySelfie, CategorySignature:
		return imageTypes, nil
	case CategoryDisabilityLetter:
		merged := make(map[string]bool, len(imageTypes)+len(documentTypes))
		for k := range imageTypes {
			merged[k] = true
		}
		for k := range documentTypes {
			merged[k] = true
		}
		return merged, nil
	}
	return nil, ErrUnknownCategory
}

// ---------------------------------------------------------------------------
// Data URIs
// ---------------------------------------------------------------------------

// DataURI is a decoded "data:" URI. Width and Height are set by Validate for
// decodable images.
type DataURI struct {
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// ParseDataURI decodes data:<mime>[;base64],<payload>. Non-base64 payloads
// are percent-decoded.
func ParseDataURI(raw string) (*DataURI, error) {
	if !strings.HasPrefix(raw, "data:") {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	params := strings.Split(header, ";")
	contentType := strings.ToLower(strings.TrimSpace(params[0]))
	if contentType == "" {
		contentType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	var data []byte
	if isBase64 {
		if base64.StdEncoding.DecodedLen(len(payload)) > MaxFileSize+3 {
			return nil, ErrFileTooLarge
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		data = []byte(unescaped)
	}

	return &DataURI{ContentType: contentType, Data: data}, nil
}

// Validate parses raw and checks it against the rules for category.
func Validate(category Category, raw string) (*DataURI, error) {
	allowed, err := AllowedContentTypes(category)
	if err != nil {
		return nil, err
	}
	uri, err := ParseDataURI(raw)
	if err != nil {
		return nil, err
	}
	if len(uri.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(uri.Data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if !allowed[uri.ContentType] {
		return nil, fmt.Errorf("%w: %s for %s", ErrInvalidContentType, uri.ContentType, category)
	}
	if decodableTypes[uri.ContentType] {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(uri.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxImagePixels {
			return nil, fmt.Errorf("%w: %dx%d", ErrCorruptImage, cfg.Width, cfg.Height)
		}
		uri.Width, uri.Height = cfg.Width, cfg.Height
	}
	return uri, nil
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Metadata describes a stored attachment.
type Metadata struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Category    Category  `json:"category"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"sha256"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store keeps attachments for the lifetime of a registration session.
type Store interface {
	// Put stores uri as the session's attachment for category, replacing
	// any earlier one.
	Put(ctx context.Context, sessionID string, category Category, uri *DataURI) (*Metadata, error)
	Get(ctx context.Context, id string) (*Metadata, []byte, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Metadata, error)
	// Delete drops the session's attachment for category, if any.
	Delete(ctx context.Context, sessionID string, category Category) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type storedAttachment struct {
	metadata Metadata
	content  []byte
}

// InMemoryStore is a thread-safe Store. Nothing outlives the process.
type InMemoryStore struct {
	mu       sync.RWMutex
	items    map[string]*storedAttachment
	sessions map[string]map[Category]string // session -> category -> attachment id
}

// NewInMemoryStore returns a ready-to-use InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items:    make(map[string]*storedAttachment),
		sessions: make(map[string]map[Category]string),
	}
}

func (s *InMemoryStore) Put(_ context.Context, sessionID string, category Category, uri *DataURI) (*Metadata, error) {
	if uri == nil || len(uri.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(uri.Data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(uri.Data)
	meta := Metadata{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Category:    category,
		ContentType: uri.ContentType,
		Size:        int64(len(uri.Data)),
		Hash:        fmt.Sprintf("%x", h),
		Width:       uri.Width,
		Height:      uri.Height,
		CreatedAt:   time.Now().UTC(),
	}
	content := make([]byte, len(uri.Data))
	copy(content, uri.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	byCategory, ok := s.sessions[sessionID]
	if !ok {
		byCategory = make(map[Category]string)
		s.sessions[sessionID] = byCategory
	}
	if prev, ok := byCategory[category]; ok {
		delete(s.items, prev)
	}
	byCategory[category] = meta.ID
	s.items[meta.ID] = &storedAttachment{metadata: meta, content: content}

	out := meta // copy
	return &out, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Metadata, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil, ErrAttachmentNotFound
	}
	meta := item.metadata
	return &meta, item.content, nil
}

// ListBySession returns the session's attachments ordered by category.
func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Metadata
	for _, id := range s.sessions[sessionID] {
		if item, ok := s.items[id]; ok {
			m := item.metadata
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string, category Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCategory := s.sessions[sessionID]
	if id, ok := byCategory[category]; ok {
		delete(s.items, id)
		delete(byCategory, category)
	}
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.sessions[sessionID] {
		delete(s.items, id)
	}
	delete(s.sessions, sessionID)
	return nil
}
