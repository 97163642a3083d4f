// Package fetch stages remote artifacts into a run-local directory with a
// streaming sha256 digest and bounded retries on transient failures.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Defaults applied when Options fields are unset (zero timeout, negative
// retry count, empty agent).
const (
	DefaultTimeout = 5 * time.Minute
	DefaultRetries = 2
	defaultAgent   = "binhub/1.0"
)

// RetrievalError reports a failed download: transport error, timeout, or a
// non-success HTTP status after retries were exhausted.
type RetrievalError struct {
	URL    string
	Status string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("retrieve %s: unexpected status %s", e.URL, e.Status)
	}
	return fmt.Sprintf("retrieve %s: %v", e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ChecksumMismatchError reports that a staged artifact's computed digest does
// not match the manifest's declared sha256. Never retried.
type ChecksumMismatchError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s got %s", e.URL, e.Expected, e.Actual)
}

// Staged describes a downloaded artifact sitting in the staging directory.
type Staged struct {
	Path   string
	Size   int64
	SHA256 string
}

// Options configures retrieval behaviour.
type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
}

// Fetcher downloads artifacts through a retrying HTTP client. Retries cover
// transport errors and 5xx responses only; 4xx responses fail immediately.
type Fetcher struct {
	client     *retryablehttp.Client
	stagingDir string
	userAgent  string
}

// New builds a Fetcher that stages files under stagingDir.
func New(stagingDir string, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = DefaultRetries
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultAgent
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = nil

	return &Fetcher{
		client:     client,
		stagingDir: stagingDir,
		userAgent:  opts.UserAgent,
	}
}

// Stage retrieves rawURL into the staging directory, computing the sha256 as
// bytes stream to disk. When expectedSHA256 is non-empty and differs from the
// computed digest the staged file is discarded and a ChecksumMismatchError is
// returned. On success the caller owns the staged file and must invoke the
// returned cleanup once the artifact has been promoted (or abandoned).
func (f *Fetcher) Stage(ctx context.Context, rawURL, expectedSHA256 string) (Staged, func(), error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return Staged{}, nil, &RetrievalError{URL: rawURL, Err: err}
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Staged{}, nil, &RetrievalError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Staged{}, nil, &RetrievalError{URL: rawURL, Status: resp.Status}
	}

	if err := os.MkdirAll(f.stagingDir, 0o755); err != nil {
		return Staged{}, nil, fmt.Errorf("prepare staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.stagingDir, "stage-*.tmp")
	if err != nil {
		return Staged{}, nil, fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	discard := func() { _ = os.Remove(tmpPath) }

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		discard()
		return Staged{}, nil, &RetrievalError{URL: rawURL, Err: err}
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if expectedSHA256 != "" && !strings.EqualFold(digest, expectedSHA256) {
		discard()
		return Staged{}, nil, &ChecksumMismatchError{
			URL:      rawURL,
			Expected: strings.ToLower(expectedSHA256),
			Actual:   digest,
		}
	}

	staged := Staged{Path: tmpPath, Size: size, SHA256: digest}
	return staged, discard, nil
}
