// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ObjectStore opens writers for objects in a bucket.
//
// It is the slice of the Cloud Storage client GCSWriter needs.
type ObjectStore interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

// gcsStore adapts *storage.Client to ObjectStore.
type gcsStore struct {
	client *storage.Client
}

func (s gcsStore) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	return w
}

// GCSWriter uploads each record as gs://<bucket>/<prefix>/<name>/<id>.json.
//
// Thread Safety: Safe for concurrent use.
type GCSWriter struct {
	store  ObjectStore
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSWriter creates a writer backed by Cloud Storage.
//
// Inputs:
//   - ctx: Used to create the storage client.
//   - bucket: Destination bucket. Required.
//   - prefix: Object prefix. May be empty.
//   - credentialsFile: Service account key. Empty uses application default
//     credentials.
//
// Outputs:
//   - *GCSWriter: The writer. Close it to release the client.
//   - error: Non-nil if the client cannot be created.
func NewGCSWriter(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSWriter, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &GCSWriter{
		store:  gcsStore{client: client},
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// NewGCSWriterWithStore creates a writer over an arbitrary object store.
func NewGCSWriterWithStore(store ObjectStore, bucket, prefix string) *GCSWriter {
	return &GCSWriter{store: store, bucket: bucket, prefix: prefix}
}

// ObjectName returns the object path a record is uploaded to.
func (w *GCSWriter) ObjectName(rec *Record) string {
	name := strings.ReplaceAll(rec.Name, "/", "_")
	if name == "" {
		name = "unnamed"
	}
	return path.Join(w.prefix, name, rec.ID.String()+".json")
}

// Write implements Writer.
func (w *GCSWriter) Write(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrWrite)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding %q: %w", ErrWrite, rec.Name, err)
	}

	object := w.ObjectName(rec)
	ow := w.store.NewWriter(ctx, w.bucket, object)
	if _, err := ow.Write(body); err != nil {
		ow.Close()
		return fmt.Errorf("%w: uploading gs://%s/%s: %w", ErrWrite, w.bucket, object, err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("%w: finalizing gs://%s/%s: %w", ErrWrite, w.bucket, object, err)
	}
	return nil
}

// Close releases the storage client, if the writer owns one.
func (w *GCSWriter) Close() error {
	if w.client == nil {
		return nil
	}
	return w.client.Close()
}

var _ Writer = (*GCSWriter)(nil)
