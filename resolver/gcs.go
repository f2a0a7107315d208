// SPDX-License-Identifier: LGPL-3.0-or-later

package resolver

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"hyperfetch"
	"hyperfetch/internal/credentials"
)

// GCSConfig names the bucket a GCSResolver signs object URLs against.
// ServiceAccountJSON, when set, is passed to storage.NewClient as
// credentials; empty uses application default credentials. When
// CredentialsName is set, NewGCSResolver fetches a "service_account_json"
// value from Store instead.
type GCSConfig struct {
	Bucket             string
	ServiceAccountJSON []byte
	Expires            time.Duration

	CredentialsName string
	Store           credentials.Store
}

// GCSResolver turns a Request(Id) naming a GCS object name into a signed
// GET URL.
type GCSResolver struct {
	cfg    GCSConfig
	client *storage.Client
}

// NewGCSResolver opens a storage client the same way the teacher's GCP
// provider does, with application-default credentials unless a service
// account key is supplied.
func NewGCSResolver(ctx context.Context, cfg GCSConfig) (*GCSResolver, error) {
	if cfg.Expires <= 0 {
		cfg.Expires = 15 * time.Minute
	}

	if cfg.CredentialsName != "" && cfg.Store != nil {
		values, err := cfg.Store.Get(ctx, cfg.CredentialsName)
		if err != nil {
			return nil, fmt.Errorf("fetch gcs credentials %s: %w", cfg.CredentialsName, err)
		}
		cfg.ServiceAccountJSON = []byte(values["service_account_json"])
	}

	var opts []option.ClientOption
	if len(cfg.ServiceAccountJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.ServiceAccountJSON))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	return &GCSResolver{cfg: cfg, client: client}, nil
}

func (r *GCSResolver) Resolve(req hyperfetch.Request) (hyperfetch.ResolvedTarget, error) {
	objectName, err := objectKey(req)
	if err != nil {
		return hyperfetch.ResolvedTarget{}, err
	}

	url, err := r.client.Bucket(r.cfg.Bucket).SignedURL(objectName, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(r.cfg.Expires),
	})
	if err != nil {
		return hyperfetch.ResolvedTarget{}, fmt.Errorf("sign gcs object url for %s: %w", objectName, err)
	}

	return hyperfetch.ResolvedTarget{URL: url}, nil
}
