package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const defaultStoreRetries = 3
const retryWaitTime = 5 * time.Second

// S3Params ...
type S3Params struct {
	Region          string
	Bucket          string
	ObjectKey       string
	AccessKeyID     stepconf.Secret
	SecretAccessKey stepconf.Secret
	// RetryTotal is the per-call retry budget against the S3 API. Defaults to 3.
	RetryTotal int
}

// s3API is the subset of the S3 client the store calls.
// *s3.Client satisfies it; tests substitute a fake.
type s3API interface {
	manager.UploadAPIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3BlockStore struct {
	client     s3API
	bucket     string
	key        string
	retryTotal uint
	logger     log.Logger

	uploadID string
	parts    map[string]types.CompletedPart
	nextPart int32
}

// NewS3BlockStore creates a BlockStore that stages blocks as parts of an S3
// multipart upload and assembles them with CompleteMultipartUpload.
func NewS3BlockStore(ctx context.Context, params S3Params, logger log.Logger) (BlockStore, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("Bucket must not be empty")
	}
	if params.ObjectKey == "" {
		return nil, fmt.Errorf("ObjectKey must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, string(params.AccessKeyID), string(params.SecretAccessKey), logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	retryTotal := params.RetryTotal
	if retryTotal <= 0 {
		retryTotal = defaultStoreRetries
	}

	return &s3BlockStore{
		client:     s3.NewFromConfig(*cfg),
		bucket:     params.Bucket,
		key:        params.ObjectKey,
		retryTotal: uint(retryTotal),
		logger:     logger,
		parts:      map[string]types.CompletedPart{},
	}, nil
}

func (store *s3BlockStore) ValidateContainer(ctx context.Context) (bool, error) {
	found := false
	err := retry.Times(store.retryTotal).Wait(retryWaitTime).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := store.client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(store.bucket),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					return nil, true
				}
			}
			return fmt.Errorf("head bucket: %w", err), false
		}

		found = true
		return nil, true
	})

	return found, err
}

func (store *s3BlockStore) CreateObject(ctx context.Context) error {
	return retry.Times(store.retryTotal).Wait(retryWaitTime).TryWithAbort(func(attempt uint) (error, bool) {
		output, err := store.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:      aws.String(store.bucket),
			Key:         aws.String(store.key),
			ContentType: aws.String("application/octet-stream"),
		})
		if err != nil {
			return fmt.Errorf("create multipart upload: %w", err), false
		}

		store.uploadID = aws.ToString(output.UploadId)
		store.logger.Debugf("Multipart upload ID: %s", store.uploadID)
		return nil, true
	})
}

func (store *s3BlockStore) StageBlock(ctx context.Context, blockID string, data []byte) error {
	if store.uploadID == "" {
		return fmt.Errorf("stage block %s: object is not created yet", blockID)
	}

	partNumber := store.nextPart + 1
	var etag string
	err := retry.Times(store.retryTotal).Wait(retryWaitTime).TryWithAbort(func(attempt uint) (error, bool) {
		output, err := store.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(store.bucket),
			Key:           aws.String(store.key),
			UploadId:      aws.String(store.uploadID),
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return fmt.Errorf("upload part %d: %w", partNumber, err), false
		}

		etag = aws.ToString(output.ETag)
		return nil, true
	})
	if err != nil {
		return err
	}

	store.nextPart = partNumber
	store.parts[blockID] = types.CompletedPart{
		ETag:       aws.String(etag),
		PartNumber: aws.Int32(partNumber),
	}
	return nil
}

func (store *s3BlockStore) CommitObject(ctx context.Context, blockIDs []string) error {
	if len(blockIDs) == 0 {
		return store.commitEmptyObject(ctx)
	}

	// Block IDs arrive in stage order, which is also part number order, so the
	// ascending part number requirement of CompleteMultipartUpload holds.
	parts := make([]types.CompletedPart, 0, len(blockIDs))
	for _, blockID := range blockIDs {
		part, ok := store.parts[blockID]
		if !ok {
			return fmt.Errorf("unknown block ID in commit list: %s", blockID)
		}
		parts = append(parts, part)
	}

	return retry.Times(store.retryTotal).Wait(retryWaitTime).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(store.bucket),
			Key:      aws.String(store.key),
			UploadId: aws.String(store.uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: parts,
			},
		})
		if err != nil {
			return fmt.Errorf("complete multipart upload: %w", err), false
		}
		return nil, true
	})
}

// CompleteMultipartUpload rejects an empty part list, so an empty session is
// committed as a plain zero-byte object.
func (store *s3BlockStore) commitEmptyObject(ctx context.Context) error {
	if store.uploadID != "" {
		_, err := store.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(store.bucket),
			Key:      aws.String(store.key),
			UploadId: aws.String(store.uploadID),
		})
		if err != nil {
			store.logger.Warnf("Failed to abort the pending multipart upload: %s", err)
		}
		store.uploadID = ""
	}

	uploader := manager.NewUploader(store.client)
	return retry.Times(store.retryTotal).Wait(retryWaitTime).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(store.bucket),
			Key:         aws.String(store.key),
			Body:        bytes.NewReader(nil),
			ContentType: aws.String("application/octet-stream"),
		})
		if err != nil {
			return fmt.Errorf("upload empty object: %w", err), false
		}
		return nil, true
	})
}

func (store *s3BlockStore) Close() {
	// Staged but uncommitted parts stay orphaned until a future commit or a
	// bucket lifecycle rule removes them.
	store.logger.Debugf("S3 block store closed")
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("Using static AWS credentials")
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
