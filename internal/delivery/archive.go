package delivery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pi2rec/vadrec/internal/eventlog"
	"github.com/pi2rec/vadrec/internal/util"
)

const archiveTimeout = 5 * time.Minute

// ArchiveConfig holds the S3-compatible storage settings.
type ArchiveConfig struct {
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// IsConfigured reports whether all required fields are set.
func (c *ArchiveConfig) IsConfigured() bool {
	return util.IsConfigured(c.Bucket, c.AccessKeyID, c.SecretAccessKey)
}

// Archiver copies processed recordings to S3-compatible storage. Archival is
// best effort; a failed upload never blocks or fails delivery.
type Archiver struct {
	client *s3.Client
	bucket string
	events *eventlog.Logger

	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewArchiver creates the S3 client and starts the archive worker.
func NewArchiver(cfg ArchiveConfig, events *eventlog.Logger) *Archiver {
	a := &Archiver{
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
		events: events,
		queue:  make(chan string, 16),
		stopCh: make(chan struct{}),
	}

	a.wg.Add(1)
	go a.worker()

	return a
}

// newS3Client builds a client for the configured endpoint. Region is "auto"
// to suit Cloudflare R2 and similar providers; a custom endpoint forces
// path-style addressing.
func newS3Client(cfg ArchiveConfig) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// Enqueue queues a recording for archival without blocking.
func (a *Archiver) Enqueue(path string) bool {
	select {
	case a.queue <- path:
		return true
	default:
		slog.Warn("archive queue full, dropping job", "file", filepath.Base(path))
		return false
	}
}

// Stop signals the worker and waits up to drainTimeout for queued uploads.
func (a *Archiver) Stop(drainTimeout time.Duration) {
	close(a.stopCh)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		slog.Warn("archive worker did not drain in time, abandoning")
	}
}

// worker processes the archive queue, draining remaining items on shutdown.
func (a *Archiver) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			for {
				select {
				case path := <-a.queue:
					a.archive(path)
				default:
					return
				}
			}
		case path := <-a.queue:
			a.archive(path)
		}
	}
}

func (a *Archiver) archive(path string) {
	filename := filepath.Base(path)
	key := "recordings/" + filename

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		archiveTimeout,
		errors.New("archive upload timeout"),
	)
	defer cancel()

	file, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open file for archival", "file", filename, "error", err)
		a.events.LogDelivery(eventlog.ArchiveFailed, filename, 0, "", false, err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		slog.Error("failed to stat file for archival", "file", filename, "error", err)
		a.events.LogDelivery(eventlog.ArchiveFailed, filename, 0, "", false, err.Error())
		return
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentTypeFor(filename)),
	})
	if err != nil {
		slog.Error("archive upload failed", "key", key, "error", err)
		a.events.LogDelivery(eventlog.ArchiveFailed, filename, 0, "", false, err.Error())
		return
	}

	slog.Info("archive upload completed", "key", key)
	a.events.LogDelivery(eventlog.ArchiveCompleted, filename, 0, "", false, "")
}
