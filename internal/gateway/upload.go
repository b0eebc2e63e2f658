package gateway

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/metrics"
)

var (
	errFlagged    = errors.New("upload flagged by scanner")
	errNotImage   = errors.New("only images are accepted")
	errTooLarge   = errors.New("upload exceeds size limit")
	errNoUploadFS = errors.New("upload directory not configured")
)

const (
	pendingPrefix   = ".pending-"
	multipartSlack  = 64 << 10
	sniffBytes      = 512
	scanResponseCap = 64 << 10
)

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// uploader stores accepted images on local disk after an optional scan.
type uploader struct {
	dir         string
	maxBytes    int64
	scanURL     string
	scanTimeout time.Duration
	retention   time.Duration
	client      *http.Client
	now         func() time.Time
	log         *logging.Logger
}

func newUploader(cfg config.UploadConfig, now func() time.Time, log *logging.Logger) *uploader {
	u := &uploader{
		dir:         cfg.Dir,
		maxBytes:    cfg.MaxBytes,
		scanURL:     cfg.ScanURL,
		scanTimeout: cfg.ScanTimeout,
		client:      &http.Client{},
		now:         now,
		log:         log,
	}
	if u.maxBytes <= 0 {
		u.maxBytes = 5 << 20
	}
	if u.scanTimeout <= 0 {
		u.scanTimeout = 8 * time.Second
	}
	if cfg.RetentionDays > 0 {
		u.retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	}
	return u
}

// scanRequest is posted to the scan callback.
type scanRequest struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Mime   string `json:"mime"`
	SHA256 string `json:"sha256"`
}

type scanResponse struct {
	Flagged bool  `json:"flagged"`
	OK      *bool `json:"ok,omitempty"`
}

// save writes src to a pending file, scans it and publishes it under a
// generated name. It returns the public file name.
func (u *uploader) save(ctx context.Context, src io.Reader) (string, error) {
	if u.dir == "" {
		return "", errNoUploadFS
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	head = head[:n]
	mime := http.DetectContentType(head)
	ext, ok := imageExt[mime]
	if !ok {
		return "", errNotImage
	}

	pending, err := os.CreateTemp(u.dir, pendingPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("creating pending file: %w", err)
	}
	pendingPath := pending.Name()
	published := false
	defer func() {
		if !published {
			os.Remove(pendingPath)
		}
	}()

	h := sha256.New()
	limited := io.LimitReader(io.MultiReader(bytes.NewReader(head), src), u.maxBytes+1)
	size, err := io.Copy(io.MultiWriter(pending, h), limited)
	if cerr := pending.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("writing pending file: %w", err)
	}
	if size > u.maxBytes {
		return "", errTooLarge
	}

	name := fmt.Sprintf("%d-%s%s", u.now().UnixMilli(), randomSuffix(), ext)
	sum := hex.EncodeToString(h.Sum(nil))
	if u.scan(ctx, scanRequest{Name: name, Size: size, Mime: mime, SHA256: sum}) {
		return "", errFlagged
	}

	if err := os.Rename(pendingPath, filepath.Join(u.dir, name)); err != nil {
		return "", fmt.Errorf("publishing upload: %w", err)
	}
	published = true
	u.log.Info().Str("name", name).Int64("size", size).Str("mime", mime).Str("sha256", sum).Msg("upload accepted")
	return name, nil
}

// scan asks the scan callback about a file. Only an explicit verdict
// rejects; timeouts and transport errors let the file through.
func (u *uploader) scan(ctx context.Context, req scanRequest) (flagged bool) {
	if u.scanURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, u.scanTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return false
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.scanURL, bytes.NewReader(body))
	if err != nil {
		u.log.Warn().Err(err).Msg("building scan request")
		return false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := u.client.Do(httpReq)
	if err != nil {
		u.log.Warn().Err(err).Str("name", req.Name).Msg("upload scan unavailable, accepting unscanned")
		return false
	}
	defer resp.Body.Close()

	var verdict scanResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, scanResponseCap)).Decode(&verdict); err != nil {
		u.log.Warn().Err(err).Str("name", req.Name).Msg("unreadable scan verdict, accepting")
		return false
	}
	if verdict.Flagged || (verdict.OK != nil && !*verdict.OK) {
		u.log.Warn().Str("name", req.Name).Str("sha256", req.SHA256).Msg("upload flagged")
		return true
	}
	return false
}

// path resolves a public upload name inside the upload directory.
func (u *uploader) path(name string) (string, bool) {
	if u.dir == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return filepath.Join(u.dir, name), true
}

// cleanup deletes published uploads older than the retention period.
func (u *uploader) cleanup() int {
	if u.retention <= 0 || u.dir == "" {
		return 0
	}
	entries, err := os.ReadDir(u.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			u.log.Warn().Err(err).Msg("listing uploads")
		}
		return 0
	}
	cutoff := u.now().Add(-u.retention)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(u.dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		u.log.Info().Int("removed", removed).Msg("expired uploads deleted")
	}
	return removed
}

func (u *uploader) runCleanup(ctx context.Context, interval time.Duration) {
	if u.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.cleanup()
		}
	}
}

func randomSuffix() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// handleUpload accepts a multipart "file" field holding an image.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.maxBytes+multipartSlack)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusBadRequest, "file_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "no_file")
		return
	}
	defer file.Close()

	name, err := s.uploads.save(r.Context(), file)
	switch {
	case err == nil:
		metrics.UploadsTotal.WithLabelValues("accepted").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "url": "/uploads/" + name})
	case errors.Is(err, errFlagged):
		metrics.UploadsTotal.WithLabelValues("flagged").Inc()
		writeError(w, http.StatusBadRequest, "file_flagged")
	case errors.Is(err, errNotImage):
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "invalid_filetype")
	case errors.Is(err, errTooLarge):
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "file_too_large")
	default:
		s.log.Error().Err(err).Msg("storing upload")
		writeError(w, http.StatusInternalServerError, "upload_failed")
	}
}

// handleServeUpload serves a published upload.
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := s.uploads.path(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if _, err := os.Stat(p); err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, p)
}
