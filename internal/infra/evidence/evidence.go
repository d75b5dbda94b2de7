// Package evidence stores workflow photos and returns the URL recorded on
// the workflow. Backends: the local filesystem and S3.
package evidence

import (
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/infra/metrics"
)

// allowedExt maps accepted content types to file extensions.
var allowedExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// ObjectKey builds "<workflow>/<step>/<uuid><ext>". The client-supplied
// name only contributes its extension.
func ObjectKey(workflowID string, step domain.StepNumber, f domain.EvidenceFile) string {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if e, ok := allowedExt[f.ContentType]; ok && ext == "" {
		ext = e
	}
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return path.Join(workflowID, step.String(), uuid.NewString()+ext)
}

// countingReader tallies bytes for the evidence_bytes metric.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func observe(backend string, start time.Time, bytes int64) {
	metrics.UploadLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	metrics.EvidenceBytes.Add(float64(bytes))
}

func body(f domain.EvidenceFile) io.Reader {
	if f.Body == nil {
		return strings.NewReader("")
	}
	return f.Body
}
