package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureClient stores objects as blobs in a single Azure Storage container,
// the cloud-backed counterpart to FilesystemClient for deployments that
// need durable, off-box artifact storage. The teacher's go.mod already
// carries azcore/azidentity for credential plumbing; this wires them to an
// actual service rather than leaving them declared but unused.
type AzureClient struct {
	client    *azblob.Client
	container string
}

// NewAzureClient builds a client against accountURL (e.g.
// https://<account>.blob.core.windows.net) authenticating with the
// ambient workload identity / managed identity chain, mirroring
// azidentity.NewDefaultAzureCredential's role in the teacher's other
// Azure-facing code paths.
func NewAzureClient(accountURL, container string) (*AzureClient, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: azure client: %w", err)
	}
	return &AzureClient{client: client, container: container}, nil
}

func (a *AzureClient) Put(ctx context.Context, tenantID, key string, data []byte) (string, string, error) {
	full := tenantKey(tenantID, key)
	_, err := a.client.UploadBuffer(ctx, a.container, full, data, nil)
	if err != nil {
		return "", "", fmt.Errorf("objectstore: azure upload: %w", err)
	}
	return fmt.Sprintf("azblob://%s/%s", a.container, full), Checksum(data), nil
}

func (a *AzureClient) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	full := tenantKey(tenantID, key)
	resp, err := a.client.DownloadStream(ctx, a.container, full, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, &ErrNotFound{Key: full}
		}
		return nil, fmt.Errorf("objectstore: azure download: %w", err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("objectstore: azure read body: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *AzureClient) Exists(ctx context.Context, tenantID, key string) (bool, error) {
	full := tenantKey(tenantID, key)
	_, err := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(full).GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("objectstore: azure stat: %w", err)
	}
	return true, nil
}

func (a *AzureClient) Delete(ctx context.Context, tenantID, key string) error {
	full := tenantKey(tenantID, key)
	_, err := a.client.DeleteBlob(ctx, a.container, full, nil)
	if err != nil && !isAzureNotFound(err) {
		return fmt.Errorf("objectstore: azure delete: %w", err)
	}
	return nil
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.ErrorCode == string(bloberror.BlobNotFound)
	}
	return false
}
