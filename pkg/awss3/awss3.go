// AWS S3 specific functions. Implements the objstore.Backend interface.
// Also works against S3-compatible endpoints (moto, minio) via the
// endpoint config option.

package awss3

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/serverlessresearch/objstore/pkg/objstore"
)

type Backend struct {
	client *s3.S3
	region string
	log    objstore.Logger
}

// New builds an S3 backend from config. Recognized keys: endpoint (URL
// override for S3-compatible services), region, profile (shared
// credential set). See configs/objstore.yaml for an example.
func New(logger objstore.Logger, config *viper.Viper) (*Backend, error) {
	opts := session.Options{SharedConfigState: session.SharedConfigEnable}

	region := ""
	if config != nil {
		region = config.GetString("region")
		if profile := config.GetString("profile"); profile != "" {
			opts.Profile = profile
		}
		if region != "" {
			opts.Config.Region = aws.String(region)
		}
		if endpoint := config.GetString("endpoint"); endpoint != "" {
			opts.Config.Endpoint = aws.String(endpoint)
			// Compatible services generally don't support virtual-host
			// style bucket addressing.
			opts.Config.S3ForcePathStyle = aws.Bool(true)
		}
	}

	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}
	return &Backend{client: s3.New(sess), region: region, log: logger}, nil
}

// translate normalizes AWS error codes into the shared taxonomy so the
// core never inspects awserr types.
func translate(err error) error {
	if err == nil {
		return nil
	}
	aerr, ok := err.(awserr.Error)
	if !ok {
		return objstore.WrapError(objstore.ErrBackend, err, "backend request failed")
	}
	switch aerr.Code() {
	case s3.ErrCodeBucketAlreadyExists, s3.ErrCodeBucketAlreadyOwnedByYou:
		return objstore.WrapError(objstore.ErrAlreadyExists, err, "bucket already exists")
	case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchUpload, "NotFound":
		return objstore.WrapError(objstore.ErrNotFound, err, "no such bucket or key")
	case "BucketNotEmpty":
		return objstore.WrapError(objstore.ErrBucketNotEmpty, err, "bucket not empty")
	case "AccessDenied":
		return objstore.WrapError(objstore.ErrPermissionDenied, err, "backend denied access")
	case "InvalidArgument", "InvalidBucketName", "InvalidPart", "InvalidPartOrder":
		return objstore.WrapError(objstore.ErrInvalidArgument, err, "backend rejected request")
	default:
		return objstore.WrapError(objstore.ErrBackend, err, "backend request failed")
	}
}

func (b *Backend) CreateBucket(ctx context.Context, bucket string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 is the default location and must not be sent as a
	// location constraint.
	if b.region != "" && b.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
			LocationConstraint: aws.String(b.region),
		}
	}
	_, err := b.client.CreateBucketWithContext(ctx, input)
	return translate(err)
}

func (b *Backend) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := b.client.DeleteBucketWithContext(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	return translate(err)
}

func (b *Backend) ListBuckets(ctx context.Context) ([]objstore.BucketInfo, error) {
	out, err := b.client.ListBucketsWithContext(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, translate(err)
	}
	infos := make([]objstore.BucketInfo, 0, len(out.Buckets))
	for _, bkt := range out.Buckets {
		infos = append(infos, objstore.BucketInfo{
			Name:    aws.StringValue(bkt.Name),
			Created: aws.TimeValue(bkt.CreationDate),
		})
	}
	return infos, nil
}

func (b *Backend) PutObject(ctx context.Context, bucket, key string, data []byte, metadata objstore.Metadata) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if len(metadata) > 0 {
		input.Metadata = aws.StringMap(metadata)
	}
	_, err := b.client.PutObjectWithContext(ctx, input)
	return translate(err)
}

func (b *Backend) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translate(err)
	}
	defer out.Body.Close()

	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, objstore.WrapError(objstore.ErrBackend, err, "failed to read object body")
	}
	return data, nil
}

func (b *Backend) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return translate(err)
}

func (b *Backend) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	err := b.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	if err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

func (b *Backend) GetObjectMetadata(ctx context.Context, bucket, key string) (*objstore.ObjectInfo, error) {
	out, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translate(err)
	}
	return &objstore.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.Int64Value(out.ContentLength),
		Metadata:     aws.StringValueMap(out.Metadata),
		LastModified: aws.TimeValue(out.LastModified),
	}, nil
}

func (b *Backend) CreateMultipartUpload(ctx context.Context, bucket, key string, metadata objstore.Metadata) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if len(metadata) > 0 {
		input.Metadata = aws.StringMap(metadata)
	}
	out, err := b.client.CreateMultipartUploadWithContext(ctx, input)
	if err != nil {
		return "", translate(err)
	}
	return aws.StringValue(out.UploadId), nil
}

func (b *Backend) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data []byte) (string, error) {
	out, err := b.client.UploadPartWithContext(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int64(int64(partNumber)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", translate(err)
	}
	return aws.StringValue(out.ETag), nil
}

func (b *Backend) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []objstore.CompletedPart) error {
	completed := make([]*s3.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, &s3.CompletedPart{
			PartNumber: aws.Int64(int64(p.Number)),
			ETag:       aws.String(p.Tag),
		})
	}
	_, err := b.client.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: completed},
	})
	return translate(err)
}

func (b *Backend) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := b.client.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return translate(err)
}

var _ objstore.Backend = (*Backend)(nil)
