package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds upload size limit")
	ErrUnsupportedType = errors.New("only PDF uploads are accepted")
	ErrUpload          = errors.New("upload failed")
)

// Store is the blob collaborator. The core keeps only {name, url} pairs;
// bytes live behind this interface.
type Store interface {
	Upload(ctx context.Context, path string, r io.Reader) (string, error)
	SignedURL(path string, ttl time.Duration) (string, error)
}

// Validate rejects obviously invalid files before any bytes travel to the
// store: PDFs only, capped at maxSize.
func Validate(name string, size, maxSize int64) error {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}
	if size > maxSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, name, size)
	}
	return nil
}

// DiskStore keeps uploads on the local filesystem and serves them through
// HMAC-signed URLs.
type DiskStore struct {
	dir     string
	baseURL string
	secret  []byte
}

func NewDiskStore(dir, baseURL string, secret []byte) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), secret: secret}, nil
}

func (s *DiskStore) Upload(ctx context.Context, path string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + path)
	full := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return s.baseURL + clean, nil
}

func (s *DiskStore) SignedURL(path string, ttl time.Duration) (string, error) {
	clean := filepath.Clean("/" + path)
	exp := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s%s?exp=%d&sig=%s", s.baseURL, clean, exp, s.sign(clean, exp)), nil
}

// VerifySignedURL checks the signature and expiry produced by SignedURL.
func (s *DiskStore) VerifySignedURL(path string, exp int64, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	clean := filepath.Clean("/" + path)
	return hmac.Equal([]byte(s.sign(clean, exp)), []byte(sig))
}

func (s *DiskStore) sign(path string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(path + "|" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Open returns the stored file for serving.
func (s *DiskStore) Open(path string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, filepath.Clean("/"+path)))
}

// Handler serves stored files, honoring the exp/sig query parameters from
// SignedURL. Mount it under the same prefix baseURL points at.
func (s *DiskStore) Handler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, prefix)
		exp, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
		if err != nil || !s.VerifySignedURL(path, exp, r.URL.Query().Get("sig")) {
			http.Error(w, "invalid or expired link", http.StatusForbidden)
			return
		}
		f, err := s.Open(path)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/pdf")
		if _, err := io.Copy(w, f); err != nil {
			// Client went away mid-transfer; nothing to clean up.
			return
		}
	})
}
