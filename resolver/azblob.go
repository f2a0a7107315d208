// SPDX-License-Identifier: LGPL-3.0-or-later

package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"hyperfetch"
	"hyperfetch/internal/credentials"
)

// AzureBlobConfig names the storage account, container, and optional
// explicit app-registration credentials; a zero ClientID/TenantID/Secret
// falls back to azidentity's default credential chain. When
// CredentialsName is set, NewAzureBlobResolver fetches
// "tenant_id"/"client_id"/"client_secret" from Store instead.
type AzureBlobConfig struct {
	AccountName  string
	Container    string
	TenantID     string
	ClientID     string
	ClientSecret string
	Expires      time.Duration

	CredentialsName string
	Store           credentials.Store
}

// AzureBlobResolver turns a Request(Id) naming a blob name into a
// SAS-signed URL.
type AzureBlobResolver struct {
	cfg    AzureBlobConfig
	client *service.Client
}

// NewAzureBlobResolver builds the service client the same way the
// teacher's Azure provider authenticates: a client-secret credential when
// all three app-registration fields are supplied, otherwise azidentity's
// default credential chain.
func NewAzureBlobResolver(cfg AzureBlobConfig) (*AzureBlobResolver, error) {
	if cfg.Expires <= 0 {
		cfg.Expires = 15 * time.Minute
	}

	if cfg.CredentialsName != "" && cfg.Store != nil {
		values, err := cfg.Store.Get(context.Background(), cfg.CredentialsName)
		if err != nil {
			return nil, fmt.Errorf("fetch azure credentials %s: %w", cfg.CredentialsName, err)
		}
		cfg.TenantID = values["tenant_id"]
		cfg.ClientID = values["client_id"]
		cfg.ClientSecret = values["client_secret"]
	}

	var cred azcore.TokenCredential
	var err error
	if cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := service.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure service client: %w", err)
	}

	return &AzureBlobResolver{cfg: cfg, client: client}, nil
}

func (r *AzureBlobResolver) Resolve(req hyperfetch.Request) (hyperfetch.ResolvedTarget, error) {
	blobName, err := objectKey(req)
	if err != nil {
		return hyperfetch.ResolvedTarget{}, err
	}

	containerClient := r.client.NewContainerClient(r.cfg.Container)
	blobClient := containerClient.NewBlobClient(blobName)

	permissions := sas.BlobPermissions{Read: true}
	expiry := time.Now().Add(r.cfg.Expires)

	url, err := blobClient.GetSASURL(permissions, expiry, nil)
	if err != nil {
		return hyperfetch.ResolvedTarget{}, fmt.Errorf("sign azure blob url for %s: %w", blobName, err)
	}

	return hyperfetch.ResolvedTarget{URL: url}, nil
}
