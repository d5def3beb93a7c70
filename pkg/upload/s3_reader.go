package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfpipe/pkg/config"
	"github.com/ethpandaops/perfpipe/pkg/fsutil"
)

// ErrNotFound is returned when a remote object does not exist.
var ErrNotFound = errors.New("object not found")

// S3Reader reads uploaded artifacts back from S3-compatible storage.
type S3Reader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client *s3.Client
}

// NewS3Reader creates a new S3Reader from the given configuration.
func NewS3Reader(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) *S3Reader {
	return &S3Reader{
		log:    log.WithField("component", "s3-reader"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}
}

// ListBatches returns the names of uploaded batch directories.
func (r *S3Reader) ListBatches(ctx context.Context) ([]string, error) {
	root := keyPrefix(r.cfg.Prefix) + "/" + batchesDir + "/"

	prefixes, err := r.listPrefixes(ctx, root)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(p, root), "/"))
	}

	return names, nil
}

// listPrefixes lists immediate "subdirectory" prefixes under the given prefix.
func (r *S3Reader) listPrefixes(
	ctx context.Context, prefix string,
) ([]string, error) {
	var prefixes []string

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing prefixes under %q: %w", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				prefixes = append(prefixes, *cp.Prefix)
			}
		}
	}

	return prefixes, nil
}

// FetchStore downloads the uploaded historical store named like dst and
// atomically replaces dst with it.
func (r *S3Reader) FetchStore(ctx context.Context, dst string, owner *fsutil.OwnerConfig) error {
	key := keyPrefix(r.cfg.Prefix) + "/" + storeDir + "/" + filepath.Base(dst)

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, r.cfg.Bucket, key)
		}

		return fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	if err := fsutil.WriteFileAtomic(dst, owner, func(w io.Writer) error {
		_, err := io.Copy(w, out.Body)

		return err
	}); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}

	r.log.WithFields(logrus.Fields{
		"key":  key,
		"path": dst,
	}).Info("Store fetched")

	return nil
}

// isS3NotFound returns true if the error indicates the object does not exist.
func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// Some S3-compatible implementations return a generic error with
	// "NoSuchKey" in the message rather than the typed error.
	return strings.Contains(err.Error(), "NoSuchKey")
}
