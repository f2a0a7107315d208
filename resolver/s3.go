// SPDX-License-Identifier: LGPL-3.0-or-later

package resolver

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hyperfetch"
	"hyperfetch/internal/credentials"
)

// S3Config mirrors the credential/region shape the teacher's AWS provider
// client accepts, narrowed to what presigning needs. When CredentialsName
// is set, NewS3Resolver fetches "access_key_id"/"secret_access_key" from
// Store instead of using AccessKeyID/SecretAccessKey directly.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Bucket          string
	Expires         time.Duration

	CredentialsName string
	Store           credentials.Store
}

// S3Resolver turns a Request(Id) naming an S3 object key into a presigned
// GET URL, good for Expires (default 15 minutes).
type S3Resolver struct {
	cfg    S3Config
	client *s3.PresignClient
}

// NewS3Resolver loads AWS configuration the same way the teacher's AWS
// client does: static credentials when provided, otherwise the default
// credential chain (env vars, shared config, IAM role).
func NewS3Resolver(cfg S3Config) (*S3Resolver, error) {
	if cfg.Expires <= 0 {
		cfg.Expires = 15 * time.Minute
	}

	if cfg.CredentialsName != "" && cfg.Store != nil {
		values, err := cfg.Store.Get(context.Background(), cfg.CredentialsName)
		if err != nil {
			return nil, fmt.Errorf("fetch s3 credentials %s: %w", cfg.CredentialsName, err)
		}
		cfg.AccessKeyID = values["access_key_id"]
		cfg.SecretAccessKey = values["secret_access_key"]
		cfg.SessionToken = values["session_token"]
	}

	var awsCfg awssdk.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Resolver{cfg: cfg, client: s3.NewPresignClient(client)}, nil
}

func (r *S3Resolver) Resolve(req hyperfetch.Request) (hyperfetch.ResolvedTarget, error) {
	key, err := objectKey(req)
	if err != nil {
		return hyperfetch.ResolvedTarget{}, err
	}

	out, err := r.client.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: awssdk.String(r.cfg.Bucket),
		Key:    awssdk.String(key),
	}, s3.WithPresignExpires(r.cfg.Expires))
	if err != nil {
		return hyperfetch.ResolvedTarget{}, fmt.Errorf("presign s3 object %s: %w", key, err)
	}

	return hyperfetch.ResolvedTarget{URL: out.URL}, nil
}

func objectKey(req hyperfetch.Request) (string, error) {
	switch req.Kind {
	case hyperfetch.RequestID:
		return req.ID, nil
	case hyperfetch.RequestKeyedMap:
		if key, ok := req.KeyedMap["key"]; ok {
			return key, nil
		}
		return "", fmt.Errorf("keyed map request missing \"key\"")
	default:
		return "", fmt.Errorf("s3 resolver requires an Id or KeyedMap request")
	}
}
