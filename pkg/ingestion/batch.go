package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/neurascale/neural-engine/pkg/sample"
)

// S3GetObjectClient is the subset of *s3.Client the batch uploader's
// read-back path needs, narrowed for testability (mirrors
// pkg/devicemanager's S3PutObjectClient seam).
type S3GetObjectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BatchUploader re-ingests a batch of chunks a device buffered while
// disconnected and later uploaded as a single object (spec.md §4.5's
// slow path, used by offline-capable devices): it reads the object,
// decodes each length-prefixed chunk, and replays it through the same
// validate/quality-score/route/publish pipeline as a live
// chunk, then records a single batch_uploaded ledger event.
type BatchUploader struct {
	Client  S3GetObjectClient
	Bucket  string
	Codec   *sample.Codec
	Service *Service
}

// lengthPrefixHeaderSize is the size, in bytes, of the uint32
// big-endian length prefix preceding each encoded chunk in a batch
// object.
const lengthPrefixHeaderSize = 4

// Upload reads the batch object named objectKey, decodes and re-ingests
// every chunk it contains for sessionID, and records one
// batch_uploaded ledger event summarizing the result.
func (u *BatchUploader) Upload(ctx context.Context, sessionID, objectKey string) error {
	out, err := u.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &u.Bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return fmt.Errorf("ingestion: get batch object %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	chunks, err := decodeBatch(out.Body, u.Codec)
	if err != nil {
		return fmt.Errorf("ingestion: decode batch object %s: %w", objectKey, err)
	}

	for _, chunk := range chunks {
		if err := u.Service.Ingest(ctx, sessionID, chunk); err != nil {
			return fmt.Errorf("ingestion: replay chunk from batch %s: %w", objectKey, err)
		}
	}

	if u.Service.Ledger != nil {
		if err := u.Service.Ledger.RecordBatchUploaded(sessionID, objectKey, len(chunks)); err != nil {
			return fmt.Errorf("ingestion: record batch_uploaded: %w", err)
		}
	}
	return nil
}

// decodeBatch reads a stream of uint32-length-prefixed encoded chunks
// until EOF, decoding (and checksum-validating) each one.
func decodeBatch(r io.Reader, codec *sample.Codec) ([]*sample.Chunk, error) {
	br := bufio.NewReader(r)
	var chunks []*sample.Chunk

	for {
		lenBuf := make([]byte, lengthPrefixHeaderSize)
		if _, err := io.ReadFull(br, lenBuf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read chunk length prefix: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf)

		payload := make([]byte, n)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, fmt.Errorf("read chunk payload: %w", err)
		}

		chunk, err := codec.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("decode chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// encodeBatch is the inverse of decodeBatch, used by tests and any
// future write-side batch producer to build a well-formed batch object.
func encodeBatch(chunks []*sample.Chunk, codec *sample.Codec) ([]byte, error) {
	var buf bytes.Buffer
	for _, chunk := range chunks {
		payload, err := codec.Encode(chunk)
		if err != nil {
			return nil, err
		}
		lenBuf := make([]byte, lengthPrefixHeaderSize)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
		buf.Write(lenBuf)
		buf.Write(payload)
	}
	return buf.Bytes(), nil
}
