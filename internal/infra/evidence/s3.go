package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/propdesk/turnover/internal/domain"
)

// S3Config selects the bucket evidence is written to.
type S3Config struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string // optional, for S3-compatible stores
	BaseURL  string // optional public URL prefix; defaults to s3://bucket
}

// putter is the subset of *s3.Client used here.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads evidence with PutObject.
type S3 struct {
	client putter
	cfg    S3Config
}

// NewS3 loads AWS credentials from the default chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 evidence: bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3WithClient(client, cfg), nil
}

func newS3WithClient(client putter, cfg S3Config) *S3 {
	return &S3{client: client, cfg: cfg}
}

// Upload implements domain.EvidenceUploader.
func (s *S3) Upload(ctx context.Context, workflowID string, step domain.StepNumber, f domain.EvidenceFile) (string, error) {
	start := time.Now()
	key := ObjectKey(workflowID, step, f)
	if p := strings.Trim(s.cfg.Prefix, "/"); p != "" {
		key = p + "/" + key
	}

	rs, size, err := seekable(f)
	if err != nil {
		return "", fmt.Errorf("read evidence %s: %w", f.Name, err)
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          rs,
		ContentLength: aws.Int64(size),
	}
	if f.ContentType != "" {
		in.ContentType = aws.String(f.ContentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}

	observe("s3", start, size)
	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + key, nil
	}
	return "s3://" + s.cfg.Bucket + "/" + key, nil
}

// seekable returns the body as an io.ReadSeeker with its remaining length.
// PutObject must hash and rewind the payload; other readers are buffered.
func seekable(f domain.EvidenceFile) (io.ReadSeeker, int64, error) {
	rs, ok := f.Body.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(body(f))
		if err != nil {
			return nil, 0, err
		}
		return bytes.NewReader(buf), int64(len(buf)), nil
	}
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, err
	}
	if _, err := rs.Seek(cur, io.SeekStart); err != nil {
		return nil, 0, err
	}
	return rs, end - cur, nil
}
