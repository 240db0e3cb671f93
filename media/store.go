// Package media stores uploaded attachments and avatars and classifies
// stored references for display.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"path"
	"regexp"
	"strings"

	"forum/config"
	"forum/models"
	"forum/utils"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmptyUpload     = errors.New("empty upload")
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Store maps references of the form "<prefix>/<name>" onto a Backend.
type Store struct {
	backend  Backend
	prefix   string
	allowed  []string
	maxBytes int64
	logger   *slog.Logger
}

// NewStore returns a store issuing references under prefix, accepting the
// given lowercase extensions.
func NewStore(backend Backend, prefix string, allowed []string, logger *slog.Logger) *Store {
	return &Store{
		backend:  backend,
		prefix:   strings.Trim(prefix, "/"),
		allowed:  allowed,
		maxBytes: config.MaxFileSize,
		logger:   logger.With("component", "media", "prefix", prefix),
	}
}

// Save validates and persists an upload and returns its reference.
func (s *Store) Save(ctx context.Context, data []byte, originalName string) (string, error) {
	ext, err := s.checkUpload(data, originalName)
	if err != nil {
		return "", err
	}
	name := uniqueName(originalName)
	if err := s.backend.Put(ctx, name, data, contentType(ext)); err != nil {
		s.logger.Error("Failed to write upload", "name", name, "error", err)
		return "", &models.MediaError{Reason: "could not store file", Err: err}
	}
	return s.prefix + "/" + name, nil
}

// Delete removes the file behind ref. Empty or foreign references are ignored.
func (s *Store) Delete(ctx context.Context, ref string) error {
	name, ok := s.nameOf(ref)
	if !ok {
		return nil
	}
	if err := s.backend.Remove(ctx, name); err != nil {
		return fmt.Errorf("could not delete %s: %w", ref, err)
	}
	return nil
}

// Exists reports whether ref still points at a stored file.
func (s *Store) Exists(ctx context.Context, ref string) bool {
	name, ok := s.nameOf(ref)
	if !ok {
		return false
	}
	exists, err := s.backend.Exists(ctx, name)
	if err != nil {
		s.logger.Warn("Failed to stat media", "ref", ref, "error", err)
		return false
	}
	return exists
}

// Resolve returns the public URL for ref.
func (s *Store) Resolve(ref string) string {
	name, ok := s.nameOf(ref)
	if !ok {
		return ""
	}
	return s.backend.URL(name)
}

// Owns reports whether ref was issued by this store.
func (s *Store) Owns(ref string) bool {
	_, ok := s.nameOf(ref)
	return ok
}

// Describe classifies ref for rendering. Dangling references describe as none.
func (s *Store) Describe(ctx context.Context, ref string) (models.MediaKind, string) {
	kind := Kind(ref)
	if kind == models.MediaNone || !s.Exists(ctx, ref) {
		return models.MediaNone, ""
	}
	return kind, s.Resolve(ref)
}

func (s *Store) nameOf(ref string) (string, bool) {
	name, ok := strings.CutPrefix(ref, s.prefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

func (s *Store) checkUpload(data []byte, originalName string) (string, error) {
	ext := extension(originalName)
	if !s.accepts(ext) {
		return "", &models.MediaError{
			Reason: "only " + strings.Join(s.allowed, ", ") + " files are allowed",
			Err:    ErrUnsupportedType,
		}
	}
	if len(data) == 0 {
		return "", &models.MediaError{Reason: "the file is empty", Err: ErrEmptyUpload}
	}
	if int64(len(data)) > s.maxBytes {
		return "", TooLarge(s.maxBytes)
	}
	return ext, nil
}

func (s *Store) accepts(ext string) bool {
	for _, a := range s.allowed {
		if a == ext {
			return true
		}
	}
	return false
}

// Kind classifies a reference by its extension.
func Kind(ref string) models.MediaKind {
	switch extension(ref) {
	case "png", "jpg", "jpeg", "gif":
		return models.MediaImage
	case "mp4":
		return models.MediaVideo
	default:
		return models.MediaNone
	}
}

// ReadUpload reads a multipart file, enforcing the size limit before any
// bytes reach a Store.
func ReadUpload(fh *multipart.FileHeader) (*models.Upload, error) {
	if fh.Size > config.MaxFileSize {
		return nil, TooLarge(config.MaxFileSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, &models.MediaError{Reason: "could not read the upload", Err: err}
	}
	defer f.Close()

	limited := &io.LimitedReader{R: f, N: config.MaxFileSize + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &models.MediaError{Reason: "could not read the upload", Err: err}
	}
	if limited.N == 0 {
		return nil, TooLarge(config.MaxFileSize)
	}
	return &models.Upload{Filename: fh.Filename, Data: data}, nil
}

// TooLarge is the error for an upload over limit bytes.
func TooLarge(limit int64) error {
	return &models.MediaError{
		Reason: "files may be at most " + humanize.IBytes(uint64(limit)),
		Err:    ErrTooLarge,
	}
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

func contentType(ext string) string {
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// sanitizeName reduces a client file name to a safe base name, keeping the
// lowercased extension.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stem = strings.ReplaceAll(stem, " ", "_")
	stem = unsafeNameChars.ReplaceAllString(stem, "")
	stem = strings.TrimLeft(stem, "._")
	if stem == "" {
		stem = "file"
	}
	if ext = extension(ext); ext == "" {
		return stem
	}
	return stem + "." + ext
}

// uniqueName prefixes the sanitized name with a random hex id and the
// current unix time.
func uniqueName(originalName string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%d_%s", id, utils.GetTime().Unix(), sanitizeName(originalName))
}
