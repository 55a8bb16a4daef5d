/*-------------------------------------------------------------------------
 *
 * exoquery - Snapshot Storage
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package storage moves index snapshots between the local filesystem and
// object storage so one built index can be shared by many hosts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// ObjectStorage abstracts object storage operations
type ObjectStorage interface {
	// Upload copies a local file to objectPath
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to a local file
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists reports whether objectPath exists
	Exists(ctx context.Context, objectPath string) (bool, error)
}

// S3Scheme prefixes object storage locations
const S3Scheme = "s3://"

// Location is a parsed snapshot location
type Location struct {
	Bucket string
	Key    string
}

// ParseLocation parses "s3://bucket/key". The second return value is
// false for plain filesystem paths.
func ParseLocation(s string) (Location, bool, error) {
	if !strings.HasPrefix(s, S3Scheme) {
		return Location{}, false, nil
	}
	rest := strings.TrimPrefix(s, S3Scheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, true, fmt.Errorf("invalid object location %q (expected s3://bucket/key)", s)
	}
	return Location{Bucket: bucket, Key: key}, true, nil
}

// String formats the location as s3://bucket/key
func (l Location) String() string {
	return S3Scheme + l.Bucket + "/" + l.Key
}

// Fetch downloads objectPath into localPath. The download goes to a
// temporary file in the same directory that is renamed on success.
func Fetch(ctx context.Context, store ObjectStorage, objectPath, localPath string) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+"-*.part")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := store.Download(ctx, objectPath, tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return nil
}
