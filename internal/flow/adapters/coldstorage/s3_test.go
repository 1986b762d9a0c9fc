package coldstorage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	putErr  error
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = body
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Storage_PutGet(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	storage := NewS3Storage(client, Config{Bucket: "cold", Prefix: "archive"})
	ctx := context.Background()

	payload := bytes.Repeat([]byte(`{"version":1}`), 50)
	require.NoError(t, storage.Put(ctx, "flows/f1/v1/op.json.gz", payload))

	stored, ok := client.objects["archive/flows/f1/v1/op.json.gz"]
	require.True(t, ok)
	assert.Less(t, len(stored), len(payload))
	assert.Equal(t, "gzip", aws.StringValue(client.lastPut.ContentEncoding))
	assert.Equal(t, "cold", aws.StringValue(client.lastPut.Bucket))

	got, err := storage.Get(ctx, "flows/f1/v1/op.json.gz")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestS3Storage_PutFailure(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}, putErr: errors.New("access denied")}
	storage := NewS3Storage(client, Config{Bucket: "cold"})

	err := storage.Put(context.Background(), "k", []byte("x"))
	assert.ErrorContains(t, err, "access denied")
}
