package cli

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/minibatch/pkg/storage"
)

// OpenArchive builds the storage backend the manifest selects.
//
// The local backend roots at Storage.Root (manifest-relative when not
// absolute; the manifest directory when empty). The s3 backend reads
// credentials from the standard AWS environment variables.
func (m *Manifest) OpenArchive() (storage.Archive, error) {
	cfg := m.Storage
	if cfg.Backend == "s3" {
		opts := s3.Options{
			Region:      cfg.Region,
			Credentials: aws.CredentialsProviderFunc(envCredentials),
		}
		if cfg.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		return storage.NewS3(s3.New(opts), cfg.Bucket, cfg.Prefix), nil
	}
	root := m.Resolve(cfg.Root)
	if root == "" {
		root = m.dir
	}
	return storage.NewLocal(root), nil
}

// envCredentials sources static credentials from the environment.
func envCredentials(_ context.Context) (aws.Credentials, error) {
	return aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}, nil
}
