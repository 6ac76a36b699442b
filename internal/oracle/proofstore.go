package oracle

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ProofStore fetches proof artifacts from S3-compatible object
// storage. Workers upload their deliverable and put "bucket/object"
// (or just "object" for the default bucket) on-chain as the proof
// reference.
type ProofStore struct {
	client *minio.Client
	bucket string
}

type ProofStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

func NewProofStore(cfg ProofStoreConfig) (*ProofStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("proof store client: %w", err)
	}
	return &ProofStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *ProofStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, object := s.bucket, strings.TrimSpace(ref)
	if i := strings.IndexByte(object, '/'); i > 0 {
		bucket, object = object[:i], object[i+1:]
	}
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("malformed proof reference %q", ref)
	}
	obj, err := s.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(io.LimitReader(obj, 1<<20))
}
