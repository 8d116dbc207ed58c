package backup

import (
	"context"
	"fmt"
	"io"
	"sort"

	"suite-backup/internal/config"
	appErrors "suite-backup/internal/errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Store keeps offsite copies in an S3 bucket or a compatible endpoint
type S3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store creates an S3 store. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3Store(cfg config.S3Config, prefix string) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, appErrors.NewConfigurationError("S3 remote store requires bucket and region", nil)
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		// MinIO and friends want path-style addressing
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, appErrors.NewConnectionError("failed to create AWS session", err)
	}

	client := s3.New(sess)
	return &S3Store{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
		prefix:   prefix,
	}, nil
}

// Provider returns "s3"
func (s *S3Store) Provider() string { return "s3" }

// Upload streams r into the bucket, switching to multipart for large archives
func (s *S3Store) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := remoteName(name); err != nil {
		return err
	}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(s.prefix, name)),
		Body:        r,
		ContentType: aws.String(contentTypeFor(name)),
	})
	if err != nil {
		return appErrors.NewConnectionError(fmt.Sprintf("failed to upload %s to s3://%s", name, s.bucket), err)
	}
	return nil
}

// Download copies an object into w
func (s *S3Store) Download(ctx context.Context, name string, w io.Writer) error {
	if err := remoteName(name); err != nil {
		return err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return appErrors.NewNotFoundError(fmt.Sprintf("remote object %s", name))
		}
		return appErrors.NewConnectionError(fmt.Sprintf("failed to download %s from s3://%s", name, s.bucket), err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return appErrors.NewIOError(fmt.Sprintf("failed to download %s", name), err)
	}
	return nil
}

// List returns the archives under the prefix
func (s *S3Store) List(ctx context.Context) ([]RemoteObject, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if p := objectKey(s.prefix, ""); p != "" {
		input.Prefix = aws.String(p + "/")
	}

	objects := []RemoteObject{}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name, ok := objectName(s.prefix, aws.StringValue(obj.Key))
			if !ok {
				continue
			}
			objects = append(objects, RemoteObject{
				Name:    name,
				Size:    aws.Int64Value(obj.Size),
				ModTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, appErrors.NewConnectionError(fmt.Sprintf("failed to list s3://%s", s.bucket), err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Delete removes an object
func (s *S3Store) Delete(ctx context.Context, name string) error {
	if err := remoteName(name); err != nil {
		return err
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
	})
	if err != nil {
		return appErrors.NewConnectionError(fmt.Sprintf("failed to delete %s from s3://%s", name, s.bucket), err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
