package authapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxFieldBytes = 4 << 10

var (
	errNotMultipart = errors.New("expected multipart/form-data")
	errFieldTooLong = errors.New("form field too long")
	errStage        = errors.New("stage upload")
)

// stagedForm is a parsed multipart request whose files were written to
// local temp files.
type stagedForm struct {
	values map[string]string
	files  map[string]string
}

func (f *stagedForm) value(name string) string { return f.values[name] }
func (f *stagedForm) file(name string) string  { return f.files[name] }

// cleanup removes staged files still on disk. Safe to call more than once.
func (f *stagedForm) cleanup() {
	for _, p := range f.files {
		_ = os.Remove(p)
	}
}

// stageMultipart streams the request body and stages the parts named in
// fileFields. Other file parts are drained and dropped; the first part
// per file field wins.
func (h *Handler) stageMultipart(w http.ResponseWriter, r *http.Request, fileFields ...string) (*stagedForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNotMultipart
	}

	want := make(map[string]bool, len(fileFields))
	for _, f := range fileFields {
		want[f] = true
	}

	form := &stagedForm{values: map[string]string{}, files: map[string]string{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			form.cleanup()
			return nil, err
		}

		name := part.FormName()
		switch {
		case name == "":
		case part.FileName() == "":
			if err := readField(form, name, part); err != nil {
				_ = part.Close()
				form.cleanup()
				return nil, err
			}
		case want[name] && form.files[name] == "":
			path, err := h.stageFile(part)
			if err != nil {
				_ = part.Close()
				form.cleanup()
				return nil, err
			}
			form.files[name] = path
		}
		_ = part.Close()
	}
}

func readField(form *stagedForm, name string, part *multipart.Part) error {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return err
	}
	if len(b) > maxFieldBytes {
		return errFieldTooLong
	}
	if _, dup := form.values[name]; !dup {
		form.values[name] = string(b)
	}
	return nil
}

func (h *Handler) stageFile(part *multipart.Part) (string, error) {
	f, err := os.CreateTemp(h.cfg.UploadTempDir, "upload-*"+safeExt(part.FileName()))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errStage, err)
	}
	path := f.Name()
	if _, err := io.Copy(f, part); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: %w", errStage, err)
	}
	return path, nil
}

// safeExt keeps short alphanumeric extensions so the asset store can
// derive a content type and key suffix.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func (h *Handler) writeStageError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "upload too large")
	case errors.Is(err, errNotMultipart):
		writeError(w, http.StatusBadRequest, "invalid_request", errNotMultipart.Error())
	case errors.Is(err, errStage):
		h.log.Error("auth.upload.stage_fail", "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body")
	}
}
