package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSScheme is the scheme of Google Cloud Storage paths.
const GCSScheme = "gs"

// GCS is a Client for accessing Google Cloud Storage.  Paths have the form
// gs://bucket/object.
type GCS struct {
	*gcs.Client
}

// ParseGCSPath splits a gs://bucket/object path.
func ParseGCSPath(path string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(path, GCSScheme+"://")
	if rest == path {
		return "", "", fmt.Errorf("%w: %q is not a %s:// path", ErrInvalidPath, path, GCSScheme)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q does not name a bucket and object", ErrInvalidPath, path)
	}
	return parts[0], parts[1], nil
}

// NewObjectHandle returns a handle to the object named by path.
func (c GCS) NewObjectHandle(path string) (ObjectHandle, error) {
	bucket, object, err := ParseGCSPath(path)
	if err != nil {
		return nil, err
	}
	return gcsObjectHandle{c.Bucket(bucket).Object(object)}, nil
}

type gcsObjectHandle struct {
	*gcs.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	r, err := h.ObjectHandle.NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, newStorageError(h.ObjectName(), err)
	}
	return r, nil
}

var (
	defaultStorageClient           *gcs.Client
	defaultStorageErr              error
	initializeDefaultStorageClient sync.Once
)

func newClientWithOptions(ctx context.Context, opts ...option.ClientOption) (GCS, error) {
	initializeDefaultStorageClient.Do(func() {
		defaultStorageClient, defaultStorageErr = gcs.NewClient(ctx, opts...)
	})
	if defaultStorageErr != nil {
		return GCS{}, fmt.Errorf("creating default storage client: %w", defaultStorageErr)
	}
	return GCS{defaultStorageClient}, nil
}

// NewDefaultClient returns a storage client that uses the application default
// credentials.  It caches the storage client for efficiency.
func NewDefaultClient(ctx context.Context) (GCS, error) {
	return newClientWithOptions(ctx)
}

// NewPublicClient returns a storage client that does not use any form of
// client authorization.  It can only be used to read publicly-readable
// objects. It caches the storage client for efficiency.
func NewPublicClient(ctx context.Context) (GCS, error) {
	return newClientWithOptions(ctx, option.WithHTTPClient(http.DefaultClient))
}

// NewClientFromToken constructs a storage client that authenticates with
// the provided OAuth2 access token.
func NewClientFromToken(ctx context.Context, accessToken string) (GCS, error) {
	token := oauth2.Token{
		TokenType:   "Bearer",
		AccessToken: accessToken,
	}
	client, err := gcs.NewClient(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&token)))
	if err != nil {
		return GCS{}, fmt.Errorf("creating client with token source: %w", err)
	}
	return GCS{client}, nil
}

func newStorageError(object string, err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("object %q: %w", object, os.ErrNotExist)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("object %q: %w: %v", object, ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("object %q: %w", object, os.ErrNotExist)
		}
	}
	return err
}
