package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"suite-backup/internal/config"
	appErrors "suite-backup/internal/errors"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps offsite copies in a Google Cloud Storage bucket
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCS store. Without a credentials file the
// application default credentials are used.
func NewGCSStore(ctx context.Context, cfg config.GCSConfig, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, appErrors.NewConfigurationError("GCS remote store requires bucket", nil)
	}
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, appErrors.NewConnectionError("failed to create GCS client", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// Provider returns "gcs"
func (s *GCSStore) Provider() string { return "gcs" }

// Upload streams r into an object
func (s *GCSStore) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := remoteName(name); err != nil {
		return err
	}
	w := s.client.Bucket(s.bucket).Object(objectKey(s.prefix, name)).NewWriter(ctx)
	w.ContentType = contentTypeFor(name)

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return appErrors.NewConnectionError(fmt.Sprintf("failed to upload %s to gs://%s", name, s.bucket), err)
	}
	if err := w.Close(); err != nil {
		return appErrors.NewConnectionError(fmt.Sprintf("failed to upload %s to gs://%s", name, s.bucket), err)
	}
	return nil
}

// Download copies an object into w
func (s *GCSStore) Download(ctx context.Context, name string, w io.Writer) error {
	if err := remoteName(name); err != nil {
		return err
	}
	r, err := s.client.Bucket(s.bucket).Object(objectKey(s.prefix, name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return appErrors.NewNotFoundError(fmt.Sprintf("remote object %s", name))
		}
		return appErrors.NewConnectionError(fmt.Sprintf("failed to download %s from gs://%s", name, s.bucket), err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return appErrors.NewIOError(fmt.Sprintf("failed to download %s", name), err)
	}
	return nil
}

// List returns the archives under the prefix
func (s *GCSStore) List(ctx context.Context) ([]RemoteObject, error) {
	query := &storage.Query{}
	if p := objectKey(s.prefix, ""); p != "" {
		query.Prefix = p + "/"
	}

	objects := []RemoteObject{}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, appErrors.NewConnectionError(fmt.Sprintf("failed to list gs://%s", s.bucket), err)
		}
		name, ok := objectName(s.prefix, attrs.Name)
		if !ok {
			continue
		}
		objects = append(objects, RemoteObject{Name: name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Delete removes an object
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	if err := remoteName(name); err != nil {
		return err
	}
	err := s.client.Bucket(s.bucket).Object(objectKey(s.prefix, name)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return appErrors.NewNotFoundError(fmt.Sprintf("remote object %s", name))
	}
	if err != nil {
		return appErrors.NewConnectionError(fmt.Sprintf("failed to delete %s from gs://%s", name, s.bucket), err)
	}
	return nil
}

// Close releases the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
