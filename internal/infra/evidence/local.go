package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/propdesk/turnover/internal/domain"
)

// Local writes evidence under Dir and serves it back at BaseURL.
type Local struct {
	Dir     string
	BaseURL string
}

// NewLocal creates the evidence directory if needed.
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload implements domain.EvidenceUploader.
func (l *Local) Upload(ctx context.Context, workflowID string, step domain.StepNumber, f domain.EvidenceFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()
	key := ObjectKey(workflowID, step, f)
	dst := filepath.Join(l.Dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}

	// Write to a temp file first, then rename, so readers never see a
	// partial photo.
	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create evidence file: %w", err)
	}
	cr := &countingReader{r: body(f)}
	if _, err := io.Copy(out, cr); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write evidence: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close evidence: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize evidence: %w", err)
	}

	observe("local", start, cr.n)
	return l.BaseURL + "/" + key, nil
}

// Handler serves stored evidence files. Directory paths are not listed.
// Mount it with http.StripPrefix.
func (l *Local) Handler() http.Handler {
	files := http.FileServer(http.Dir(l.Dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		if fi, err := os.Stat(filepath.Join(l.Dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))); err == nil && fi.IsDir() {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// Writable reports whether the evidence directory accepts writes.
func (l *Local) Writable() error {
	f, err := os.CreateTemp(l.Dir, ".writable-*")
	if err != nil {
		return fmt.Errorf("evidence dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
