package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"

	"suite-backup/internal/config"
	appErrors "suite-backup/internal/errors"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStore keeps offsite copies in an Azure Blob Storage container
type AzureStore struct {
	container azblob.ContainerURL
	name      string
	prefix    string
}

// NewAzureStore creates an Azure store with shared key credentials
func NewAzureStore(cfg config.AzureConfig, prefix string) (*AzureStore, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" || cfg.ContainerName == "" {
		return nil, appErrors.NewConfigurationError("Azure remote store requires account_name, account_key and container_name", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, appErrors.NewConfigurationError("invalid Azure credentials", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName))
	if err != nil {
		return nil, appErrors.NewConfigurationError("invalid Azure service URL", err)
	}
	service := azblob.NewServiceURL(*serviceURL, pipeline)

	return &AzureStore{
		container: service.NewContainerURL(cfg.ContainerName),
		name:      cfg.ContainerName,
		prefix:    prefix,
	}, nil
}

// Provider returns "azure"
func (s *AzureStore) Provider() string { return "azure" }

// Upload streams r into a block blob
func (s *AzureStore) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := remoteName(name); err != nil {
		return err
	}
	blob := s.container.NewBlockBlobURL(objectKey(s.prefix, name))
	_, err := azblob.UploadStreamToBlockBlob(ctx, r, blob, azblob.UploadStreamToBlockBlobOptions{
		BufferSize:      4 * 1024 * 1024,
		MaxBuffers:      4,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: contentTypeFor(name)},
	})
	if err != nil {
		return appErrors.NewConnectionError(fmt.Sprintf("failed to upload %s to container %s", name, s.name), err)
	}
	return nil
}

// Download copies a blob into w
func (s *AzureStore) Download(ctx context.Context, name string, w io.Writer) error {
	if err := remoteName(name); err != nil {
		return err
	}
	blob := s.container.NewBlobURL(objectKey(s.prefix, name))
	resp, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return appErrors.NewNotFoundError(fmt.Sprintf("remote object %s", name))
		}
		return appErrors.NewConnectionError(fmt.Sprintf("failed to download %s from container %s", name, s.name), err)
	}
	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return appErrors.NewIOError(fmt.Sprintf("failed to download %s", name), err)
	}
	return nil
}

// List returns the archives under the prefix
func (s *AzureStore) List(ctx context.Context) ([]RemoteObject, error) {
	options := azblob.ListBlobsSegmentOptions{}
	if p := objectKey(s.prefix, ""); p != "" {
		options.Prefix = p + "/"
	}

	objects := []RemoteObject{}
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := s.container.ListBlobsFlatSegment(ctx, marker, options)
		if err != nil {
			return nil, appErrors.NewConnectionError(fmt.Sprintf("failed to list container %s", s.name), err)
		}
		for _, item := range resp.Segment.BlobItems {
			name, ok := objectName(s.prefix, item.Name)
			if !ok {
				continue
			}
			obj := RemoteObject{Name: name, ModTime: item.Properties.LastModified}
			if item.Properties.ContentLength != nil {
				obj.Size = *item.Properties.ContentLength
			}
			objects = append(objects, obj)
		}
		marker = resp.NextMarker
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Delete removes a blob and its snapshots
func (s *AzureStore) Delete(ctx context.Context, name string) error {
	if err := remoteName(name); err != nil {
		return err
	}
	blob := s.container.NewBlobURL(objectKey(s.prefix, name))
	if _, err := blob.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
		if isAzureNotFound(err) {
			return appErrors.NewNotFoundError(fmt.Sprintf("remote object %s", name))
		}
		return appErrors.NewConnectionError(fmt.Sprintf("failed to delete %s from container %s", name, s.name), err)
	}
	return nil
}

func isAzureNotFound(err error) bool {
	var serr azblob.StorageError
	if errors.As(err, &serr) {
		return serr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
