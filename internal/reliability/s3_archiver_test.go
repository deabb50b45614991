package reliability

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 records single-part uploads
type fakeS3 struct {
	bucket      string
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	client := &fakeS3{}
	archiver := newS3Archiver(client, "rao-runs", "runs/", zerolog.Nop())

	key, err := archiver.Archive(context.Background(), "2024/06/30/abc.msgpack", []byte{0x81, 0xa1, 0x61, 0x01})
	require.NoError(t, err)

	assert.Equal(t, "runs/2024/06/30/abc.msgpack", key)
	assert.Equal(t, "rao-runs", client.bucket)
	assert.Equal(t, key, client.key)
	assert.Equal(t, "application/msgpack", client.contentType)
	assert.Equal(t, []byte{0x81, 0xa1, 0x61, 0x01}, client.body)
}

func TestS3Archiver_UploadError(t *testing.T) {
	archiver := newS3Archiver(&fakeS3{err: errors.New("access denied")}, "rao-runs", "", zerolog.Nop())

	_, err := archiver.Archive(context.Background(), "k.msgpack", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "k.msgpack")
}

func TestS3Archiver_ObjectKey(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "a.msgpack", "a.msgpack"},
		{"runs", "a.msgpack", "runs/a.msgpack"},
		{"runs/", "/a.msgpack", "runs/a.msgpack"},
		{"env/prod/", "2024/01/02/a.msgpack", "env/prod/2024/01/02/a.msgpack"},
	}
	for _, tt := range tests {
		a := &S3Archiver{prefix: tt.prefix}
		assert.Equal(t, tt.want, a.objectKey(tt.key))
	}
}

func TestNewS3Archiver(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), S3Config{}, zerolog.Nop())
	assert.Error(t, err)

	archiver, err := NewS3Archiver(context.Background(), S3Config{
		Bucket:          "rao-runs",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Prefix:          "runs/",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "rao-runs", archiver.bucket)
}
