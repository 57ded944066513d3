// Package objectstore is the authenticated, retry-aware blob upload client
// described in §4.B: bounded concurrency, exponential backoff on transient
// failure, immediate failure on permanent errors.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"xtracto/internal/config"
)

// PermanentError marks a failure the caller should never retry (bad key,
// encoding error, 404 on the source being fetched) — §4.B, §7.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Client is an S3-compatible object store client (works unmodified against
// R2, B2's S3-compatible endpoint, MinIO, or AWS itself — only the
// endpoint/credentials change).
type Client struct {
	s3            *s3.Client
	bucket        string
	endpoint      string
	publicBaseURL string
	sem           *semaphore.Weighted
	retryBase     time.Duration
	retryMax      int
}

// New builds a Client from the environment-sourced configuration (§6).
func New(cfg config.ObjectStore) (*Client, error) {
	if cfg.Bucket == "" || cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("missing object store configuration")
	}

	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})

	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Client{
		s3:            client,
		bucket:        cfg.Bucket,
		endpoint:      cfg.Endpoint,
		publicBaseURL: cfg.PublicBaseURL,
		sem:           semaphore.NewWeighted(int64(concurrency)),
		retryBase:     500 * time.Millisecond,
		retryMax:      3,
	}, nil
}

// Upload stores data under objectName and returns its public URL. Transient
// failures (network, 5xx) retry with exponential backoff (base 0.5-2s,
// factor 2, cap 3 attempts, §4.B); permanent failures return immediately
// wrapped in *PermanentError.
func (c *Client) Upload(ctx context.Context, data []byte, objectName, contentType string) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	if objectName == "" {
		return "", &PermanentError{Err: errors.New("empty object name")}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBase
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock

	var attempt int
	op := func() error {
		attempt++
		_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(objectName),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(policy, uint64(c.retryMax-1)))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return "", &PermanentError{Err: perm.Err}
		}
		return "", err
	}

	return c.PublicURL(objectName), nil
}

// PublicURL returns the public URL for an uploaded object, matching §3's
// "https://<objstore-host>/file/<bucket>/" convention when no explicit
// public base URL is configured.
func (c *Client) PublicURL(objectName string) string {
	if c.publicBaseURL != "" {
		return strings.TrimRight(c.publicBaseURL, "/") + "/" + objectName
	}
	return fmt.Sprintf("https://%s/file/%s/%s", c.hostOnly(), c.bucket, objectName)
}

// hostOnly strips the scheme off the configured endpoint so it can be
// recombined into a path-style public URL (e.g.
// "https://<account>.r2.cloudflarestorage.com" -> the bit after "://").
func (c *Client) hostOnly() string {
	if host := strings.TrimPrefix(strings.TrimPrefix(c.endpoint, "https://"), "http://"); host != "" {
		return host
	}
	return c.bucket + ".objstore"
}

// isTransient classifies network/5xx failures and 429 responses as
// retryable; everything else (bad request, other 4xx, encoding) is
// permanent per §4.B/§7.
func isTransient(err error) bool {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		return code >= 500 || code == http.StatusTooManyRequests
	}
	// Anything that isn't a well-formed HTTP response (DNS failure,
	// connection reset, timeout) is treated as transient.
	return true
}

// objectNameSanitizer matches everything outside [A-Za-z0-9._-] so it can be
// replaced with "_", per §6's naming convention.
var objectNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Sanitize rewrites name so it only contains [A-Za-z0-9._-], defaulting to
// "default_image.jpg" when the result would be empty (§6). It is
// idempotent: Sanitize(Sanitize(s)) == Sanitize(s), the §8 round-trip law.
func Sanitize(name string) string {
	cleaned := objectNameSanitizer.ReplaceAllString(name, "_")
	if cleaned == "" {
		return "default_image.jpg"
	}
	return cleaned
}

// ObjectName builds the "real_estate/<sanitizedIdSec>_<index>.jpg" key §6
// specifies for a listing's Nth image.
func ObjectName(idSec string, index int) string {
	return fmt.Sprintf("real_estate/%s_%d.jpg", Sanitize(idSec), index)
}

// IsObjectStoreURL reports whether url already points at this store (§3:
// images are either "N/A", an origin URL, or an object-store URL).
func (c *Client) IsObjectStoreURL(url string) bool {
	return strings.Contains(url, "/file/"+c.bucket+"/") || (c.publicBaseURL != "" && strings.HasPrefix(url, c.publicBaseURL))
}
