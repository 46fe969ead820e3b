// Package storagesvc implements file.Storage on Azure Blob Storage.
package storagesvc

import (
	"context"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
)

// ErrBlobNotFound is returned by Download for missing blobs.
var ErrBlobNotFound = core.NewNotFoundError("blob")

type AzureStorage struct {
	client    *azblob.Client
	container string
}

var _ file.Storage = (*AzureStorage)(nil)

// NewAzureStorage needs a shared key connection string, SAS URLs are signed with its account key.
func NewAzureStorage(conf *core.Config) (*AzureStorage, error) {
	client, err := azblob.NewClientFromConnectionString(conf.Storage.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "azblob.NewClientFromConnectionString")
	}
	return &AzureStorage{client: client, container: conf.Storage.Container}, nil
}

// EnsureContainer creates the container when missing.
func (s *AzureStorage) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return errors.Wrap(err, "creating container")
	}
	return nil
}

func (s *AzureStorage) Upload(ctx context.Context, blobName, contentType string, r io.Reader) error {
	_, err := s.client.UploadStream(ctx, s.container, blobName, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	return errors.Wrap(err, "uploading blob")
}

func (s *AzureStorage) Download(ctx context.Context, blobName string) (io.ReadCloser, error) {
	res, err := s.client.DownloadStream(ctx, s.container, blobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, errors.Wrap(err, "downloading blob")
	}
	return res.Body, nil
}

// Delete ignores missing blobs.
func (s *AzureStorage) Delete(ctx context.Context, blobName string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, blobName, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return errors.Wrap(err, "deleting blob")
	}
	return nil
}

func (s *AzureStorage) SignedURL(_ context.Context, blobName string, ttl time.Duration) (string, error) {
	bc := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(blobName)
	u, err := bc.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().UTC().Add(ttl), nil)
	return u, errors.Wrap(err, "signing blob url")
}
