package assets

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
)

const (
	AWSS3AssetStoreType AssetStoreType = "AWS_S3"
	LocalAssetStoreType AssetStoreType = "LOCAL"
)

type AssetStoreType string

func (s AssetStoreType) String() string {
	return string(s)
}

func AssetStoreTypes() []string {
	return []string{AWSS3AssetStoreType.String(), LocalAssetStoreType.String()}
}

type S3AssetStoreConfig struct {
	BucketName      string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3AssetStore keeps asset files in an S3 bucket under the same keys the
// local store uses. Steps cannot read S3 keys off the shared filesystem, so
// this store suits deployments that stage assets into the storage root out
// of band.
type S3AssetStore struct {
	s3       *s3.S3
	uploader *s3manager.Uploader
	config   S3AssetStoreConfig
	log      logger.Log
}

func NewS3AssetStore(config S3AssetStoreConfig, logFactory logger.LogFactory) (*S3AssetStore, error) {
	if config.BucketName == "" {
		return nil, fmt.Errorf("error bucket name must be configured")
	}
	log := logFactory("AWSS3AssetStore")
	cfg := &aws.Config{}
	log.Infof("Using bucket: %s", config.BucketName)
	if config.Region != "" {
		log.Infof("Using region: %s", config.Region)
		cfg = cfg.WithRegion(config.Region)
	} else {
		log.Info("Using default region")
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		log.Infof("Using static credentials: %s", config.AccessKeyID)
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, ""))
	} else {
		log.Infof("Using default credentials")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	return &S3AssetStore{
		s3:       s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		config:   config,
		log:      log,
	}, nil
}

// Put writes all data in the source reader to the asset identified by key.
// The caller is responsible for closing the reader.
func (s *S3AssetStore) Put(ctx context.Context, key string, source io.Reader) error {
	input := &s3manager.UploadInput{
		Body:                 source,
		Bucket:               aws.String(s.config.BucketName),
		ContentType:          aws.String("application/octet-stream"),
		Key:                  aws.String(key),
		ServerSideEncryption: aws.String("AES256"),
	}
	// Multipart uploads kick in for large assets; failed uploads attempt to
	// clean up their parts but can leave some behind
	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("error putting asset %s: %s", key, err)
	}
	s.log.WithField("bucket", s.config.BucketName).
		WithField("key", key).
		WithField("upload_id", out.UploadID).
		Infof("Uploaded object")
	return nil
}

// Get returns a reader positioned at the beginning of the asset identified
// by key. The caller is responsible for closing the reader.
func (s *S3AssetStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}
	output, err := s.s3.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting asset %s: %s", key, err)
	}
	s.log.WithField("bucket", s.config.BucketName).
		WithField("key", key).
		Infof("Read object")
	return output.Body, nil
}

// List returns a descriptor for every asset whose key begins with prefix,
// following continuation markers until the listing is complete.
func (s *S3AssetStore) List(ctx context.Context, prefix string) ([]*models.AssetDescriptor, error) {
	if strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("error asset keys cannot begin with /")
	}
	var (
		results []*models.AssetDescriptor
		marker  string
	)
	for {
		input := &s3.ListObjectsInput{
			Bucket: aws.String(s.config.BucketName),
			Marker: aws.String(marker),
			Prefix: aws.String(prefix),
		}
		output, err := s.s3.ListObjectsWithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("error listing assets prefix=%s marker=%s: %w", prefix, marker, err)
		}
		for _, obj := range output.Contents {
			results = append(results, &models.AssetDescriptor{Key: *obj.Key, Size: *obj.Size})
		}
		if output.IsTruncated == nil || !*output.IsTruncated || len(output.Contents) == 0 {
			break
		}
		marker = *output.Contents[len(output.Contents)-1].Key
	}
	s.log.WithField("bucket", s.config.BucketName).
		WithField("prefix", prefix).
		WithField("results", len(results)).
		Infof("Listed objects")
	return results, nil
}
