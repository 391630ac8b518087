package store

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/pkg/xfer/encoding/frame"
)

// S3API is the subset of the S3 client used by the S3 store.
// *s3.S3 satisfies it.
type S3API interface {
	ListObjectsV2(input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	DeleteObject(input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	HeadObject(input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
}

// S3 stores files as objects under a key prefix in one bucket.
// Objects below a further "/" are not part of the namespace.
type S3 struct {
	s3       S3API
	bucket   string
	prefix   string
	kmsKeyID *string
}

// S3Option configures an S3 store.
type S3Option func(*S3)

// WithKMSKey encrypts uploads with the given KMS key instead of AES256.
func WithKMSKey(keyID string) S3Option {
	return func(s *S3) {
		s.kmsKeyID = aws.String(keyID)
	}
}

// NewS3 returns an S3 store backed by client.
func NewS3(client S3API, bucket, prefix string, opts ...S3Option) *S3 {
	s := &S3{
		s3:     client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialS3 builds an S3 client from the default credential chain.
// A non-empty endpoint selects path-style addressing, as S3-compatible servers expect.
func DialS3(bucket, prefix, region, endpoint string, opts ...S3Option) (*S3, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "aws session")
	}

	return NewS3(s3.New(sess), bucket, prefix, opts...), nil
}

func (s *S3) key(name string) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return name, nil
	}
	return path.Join(s.prefix, name), nil
}

func (s *S3) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *S3) Open(name string) (io.ReadCloser, int64, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, notExist("open", name)
		}
		return nil, 0, errors.Wrapf(err, "get object %q", key)
	}

	return obj.Body, aws.Int64Value(obj.ContentLength), nil
}

func (s *S3) Create(name string) (Writer, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	return &s3Writer{s: s, key: key}, nil
}

// Remove reports a missing object explicitly, since DeleteObject succeeds on absent keys.
func (s *S3) Remove(name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}

	if _, err := s.s3.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return notExist("remove", name)
		}
		return errors.Wrapf(err, "head object %q", key)
	}

	_, err = s.s3.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "delete object %q", key)
}

func (s *S3) List() ([]frame.Entry, error) {
	prefix := s.listPrefix()

	var (
		entries []frame.Entry
		token   *string
	)
	for {
		out, err := s.s3.ListObjectsV2(&s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Wrap(err, "list objects")
		}

		entries = append(entries, lo.FilterMap(out.Contents, func(o *s3.Object, _ int) (frame.Entry, bool) {
			name := strings.TrimPrefix(aws.StringValue(o.Key), prefix)
			if _, err := CleanName(name); err != nil {
				return frame.Entry{}, false
			}
			return entry(name, aws.Int64Value(o.Size))
		})...)

		if !aws.BoolValue(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	// ListObjectsV2 returns keys in UTF-8 binary order, which is byte order.
	return entries, nil
}

func (s *S3) put(key string, body []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if s.kmsKeyID == nil {
		input.ServerSideEncryption = aws.String(s3.ServerSideEncryptionAes256)
	} else {
		input.ServerSideEncryption = aws.String(s3.ServerSideEncryptionAwsKms)
		input.SSEKMSKeyId = s.kmsKeyID
	}

	_, err := s.s3.PutObject(input)
	return errors.Wrapf(err, "put object %q", key)
}

// s3Writer buffers the upload; PutObject needs a seekable body.
type s3Writer struct {
	bytes.Buffer
	s   *S3
	key string
}

func (w *s3Writer) Commit() error {
	return w.s.put(w.key, w.Bytes())
}

func (w *s3Writer) Abort() error {
	w.Reset()
	return nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
