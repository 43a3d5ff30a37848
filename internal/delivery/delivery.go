// Package delivery hands finished recordings to the remote collector over
// HTTP and, optionally, to S3-compatible archive storage. It runs behind a
// bounded queue so the capture loop never waits on network I/O.
package delivery

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pi2rec/vadrec/internal/eventlog"
	"github.com/pi2rec/vadrec/internal/util"
)

// Category classifies the outcome of one delivery attempt.
type Category string

// Delivery outcome categories.
const (
	CategoryDelivered  Category = "delivered"
	CategoryRejected   Category = "rejected"   // collector answered non-200
	CategoryTimeout    Category = "timeout"    // request deadline exceeded
	CategoryConnection Category = "connection" // transport-level failure
	CategoryInternal   Category = "internal"   // local failure before any request was made
)

// Result is the categorized outcome of a delivery attempt.
type Result struct {
	Category    Category
	Status      int  // HTTP status, when a response was received
	TLSFallback bool // true when verification was disabled for the attempt
}

// Job is one finished recording awaiting delivery.
type Job struct {
	Path   string
	Queued time.Time
}

// Uploader posts recordings to the collector endpoint. Jobs are consumed by
// a small worker pool; failures are terminal for the job and never reach
// the capture pipeline. It is safe for concurrent use.
type Uploader struct {
	url      string
	client   *http.Client
	insecure *http.Client
	events   *eventlog.Logger

	// onFailure, when set, is invoked for every failed job.
	onFailure func(filename string, result Result, err error)

	queue  chan Job
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// UploaderOptions configures a new Uploader.
type UploaderOptions struct {
	URL       string
	Timeout   time.Duration
	Workers   int
	QueueSize int
	Events    *eventlog.Logger
	OnFailure func(filename string, result Result, err error)
}

// NewUploader starts the delivery worker pool.
func NewUploader(opts UploaderOptions) *Uploader {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}

	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // deliberate verification fallback, logged on use

	u := &Uploader{
		url:       opts.URL,
		client:    &http.Client{Timeout: opts.Timeout},
		insecure:  &http.Client{Timeout: opts.Timeout, Transport: insecureTransport},
		events:    opts.Events,
		onFailure: opts.OnFailure,
		queue:     make(chan Job, opts.QueueSize),
		stopCh:    make(chan struct{}),
	}

	for range opts.Workers {
		u.wg.Add(1)
		go u.worker()
	}

	return u
}

// Enqueue queues a recording for delivery without blocking. It reports
// whether the job was accepted; a full queue drops the job.
func (u *Uploader) Enqueue(path string) bool {
	select {
	case u.queue <- Job{Path: path, Queued: time.Now()}:
		u.events.LogDelivery(eventlog.DeliveryQueued, path, 0, "", false, "")
		return true
	default:
		slog.Warn("delivery queue full, dropping job", "file", filepath.Base(path))
		return false
	}
}

// Stop signals the workers and waits up to drainTimeout for in-flight jobs.
// Jobs still running after the timeout are abandoned; delivery completion
// is not guaranteed across shutdown.
func (u *Uploader) Stop(drainTimeout time.Duration) {
	close(u.stopCh)

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		slog.Warn("delivery workers did not drain in time, abandoning")
	}
}

// worker processes the delivery queue, draining remaining items on shutdown.
func (u *Uploader) worker() {
	defer u.wg.Done()

	for {
		select {
		case <-u.stopCh:
			for {
				select {
				case job := <-u.queue:
					u.process(job)
				default:
					return
				}
			}
		case job := <-u.queue:
			u.process(job)
		}
	}
}

func (u *Uploader) process(job Job) {
	filename := filepath.Base(job.Path)

	result, err := u.Deliver(job.Path)
	if err != nil {
		slog.Error("delivery failed",
			"file", filename, "category", result.Category, "status", result.Status, "error", err)
		u.events.LogDelivery(eventlog.DeliveryFailed, filename, result.Status, string(result.Category), result.TLSFallback, err.Error())
		if u.onFailure != nil {
			u.onFailure(filename, result, err)
		}
		return
	}

	slog.Info("delivery completed", "file", filename, "tls_fallback", result.TLSFallback)
	u.events.LogDelivery(eventlog.DeliveryCompleted, filename, result.Status, string(result.Category), result.TLSFallback, "")
}

// Deliver posts the file at path to the collector. On a TLS certificate
// verification failure it retries exactly once with verification disabled,
// logging the downgrade.
func (u *Uploader) Deliver(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Category: CategoryInternal}, util.WrapError("read recording", err)
	}

	filename := filepath.Base(path)

	resp, err := u.post(u.client, filename, data)
	if err != nil && isTLSVerificationError(err) {
		slog.Warn("TLS verification failed, retrying without verification", "file", filename, "error", err)
		resp, err = u.post(u.insecure, filename, data)
		if err != nil {
			return Result{Category: categorize(err), TLSFallback: true}, err
		}
		return u.finish(resp, filename, true)
	}
	if err != nil {
		return Result{Category: categorize(err)}, err
	}

	return u.finish(resp, filename, false)
}

func (u *Uploader) finish(resp *http.Response, filename string, fallback bool) (Result, error) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{Category: CategoryRejected, Status: resp.StatusCode, TLSFallback: fallback},
			fmt.Errorf("collector returned status %d for %s", resp.StatusCode, filename)
	}
	return Result{Category: CategoryDelivered, Status: resp.StatusCode, TLSFallback: fallback}, nil
}

func (u *Uploader) post(client *http.Client, filename string, data []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, u.url, bytes.NewReader(data))
	if err != nil {
		return nil, util.WrapError("create delivery request", err)
	}

	req.Header.Set("Content-Type", ContentTypeFor(filename))
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	req.Header.Set("X-Timestamp", time.Now().Format(time.DateTime))

	return client.Do(req)
}

// ContentTypeFor infers the upload content type from the file extension.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".opus":
		return "audio/opus"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

// isTLSVerificationError reports whether err stems from certificate
// verification, the only failure class that warrants the insecure retry.
func isTLSVerificationError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidCert x509.CertificateInvalidError
	return errors.As(err, &invalidCert)
}

// categorize maps a transport error to its outcome category.
func categorize(err error) Category {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	return CategoryConnection
}
