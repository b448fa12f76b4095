package devicemanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FileExporter appends each flushed batch as newline-delimited JSON to a
// local file, for on-prem or single-node deployments (spec.md §4.4:
// "registered exporters (file, cloud)").
type FileExporter struct {
	Path string
}

func (e *FileExporter) Export(_ context.Context, events []TelemetryEvent) error {
	f, err := os.OpenFile(e.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("devicemanager: open telemetry file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("devicemanager: write telemetry event: %w", err)
		}
	}
	return nil
}

// S3PutObjectClient is the subset of *s3.Client this exporter needs,
// narrowed for testability.
type S3PutObjectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// CloudExporter uploads each flushed batch as a newline-delimited JSON
// object to an S3-compatible object store (spec.md §4.4's "cloud"
// exporter), keyed by flush timestamp so batches never collide.
type CloudExporter struct {
	Client S3PutObjectClient
	Bucket string
	Prefix string
}

func (e *CloudExporter) Export(ctx context.Context, events []TelemetryEvent) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("devicemanager: marshal telemetry event: %w", err)
		}
	}

	key := fmt.Sprintf("%s/%d.ndjson", e.Prefix, time.Now().UnixNano())
	body := bytes.NewReader(buf.Bytes())
	_, err := e.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &e.Bucket,
		Key:    &key,
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("devicemanager: upload telemetry batch: %w", err)
	}
	return nil
}
