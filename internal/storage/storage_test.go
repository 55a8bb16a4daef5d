/*-------------------------------------------------------------------------
 *
 * exoquery - Snapshot Storage Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		input   string
		want    Location
		isS3    bool
		wantErr bool
	}{
		{input: "s3://indexes/exoquery/columns.db", want: Location{Bucket: "indexes", Key: "exoquery/columns.db"}, isS3: true},
		{input: "/var/lib/exoquery/columns.db", isS3: false},
		{input: "columns.db", isS3: false},
		{input: "s3://bucket-only", isS3: true, wantErr: true},
		{input: "s3:///key", isS3: true, wantErr: true},
		{input: "s3://bucket/dir/", isS3: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			loc, isS3, err := ParseLocation(tt.input)
			if isS3 != tt.isS3 {
				t.Errorf("isS3 = %v, want %v", isS3, tt.isS3)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if loc != tt.want {
				t.Errorf("location = %+v, want %+v", loc, tt.want)
			}
			if tt.isS3 && !tt.wantErr && loc.String() != tt.input {
				t.Errorf("String() = %q, want %q", loc.String(), tt.input)
			}
		})
	}
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(filepath.Join(t.TempDir(), "remote"))
	if err != nil {
		t.Fatalf("NewLocalStorage() error: %v", err)
	}

	src := filepath.Join(t.TempDir(), "columns.db")
	if err := os.WriteFile(src, []byte("snapshot bytes"), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	if exists, err := store.Exists(ctx, "indexes/columns.db"); err != nil || exists {
		t.Fatalf("Exists() before upload = %v, %v", exists, err)
	}
	if err := store.Upload(ctx, src, "indexes/columns.db"); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if exists, err := store.Exists(ctx, "indexes/columns.db"); err != nil || !exists {
		t.Fatalf("Exists() after upload = %v, %v", exists, err)
	}

	dst := filepath.Join(t.TempDir(), "cache", "columns.db")
	if err := Fetch(ctx, store, "indexes/columns.db", dst); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "snapshot bytes" {
		t.Errorf("fetched content = %q, %v", data, err)
	}

	err = Fetch(ctx, store, "indexes/missing.db", filepath.Join(t.TempDir(), "missing.db"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorageCancelled(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Upload(ctx, "x", "y"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func newTestS3(t *testing.T, handler http.HandlerFunc) *S3Storage {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
		HTTPClient:   server.Client(),
	})
	return NewS3StorageWithClient(client, "indexes")
}

func TestS3StorageDownload(t *testing.T) {
	store := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/indexes/exoquery/columns.db") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("remote snapshot"))
	})

	dst := filepath.Join(t.TempDir(), "columns.db")
	if err := Fetch(context.Background(), store, "exoquery/columns.db", dst); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "remote snapshot" {
		t.Errorf("downloaded content = %q", data)
	}
}

func TestS3StorageExists(t *testing.T) {
	store := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	})

	exists, err := store.Exists(context.Background(), "exoquery/columns.db")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v", exists, err)
	}
}
