package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apnabank/corebank/config"
)

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3manager.UploadOutput{Location: "https://bucket.s3.amazonaws.com/" + aws.StringValue(in.Key)}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	up := &fakeUploader{}
	a := NewS3ArchiverWithUploader(up, "statements-bucket", "corebank")

	loc, err := a.Archive(context.Background(), "statements/1/a.csv", strings.NewReader("a,b\n"), ContentTypeCSV)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/corebank/statements/1/a.csv", loc)
	assert.Equal(t, "statements-bucket", aws.StringValue(up.input.Bucket))
	assert.Equal(t, ContentTypeCSV, aws.StringValue(up.input.ContentType))
	assert.Equal(t, "a,b\n", string(up.body))
}

func TestS3Archiver_UploadError(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	a := NewS3ArchiverWithUploader(up, "b", "")

	_, err := a.Archive(context.Background(), "k.csv", strings.NewReader(""), ContentTypeCSV)
	assert.EqualError(t, err, "access denied")
	assert.Equal(t, "k.csv", aws.StringValue(up.input.Key))
}

func TestNewS3Archiver_RequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(config.ArchiveConfig{S3Region: "ap-south-1"})
	assert.Error(t, err)
}

func TestNewS3Archiver_CustomEndpoint(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a, err := NewS3Archiver(config.ArchiveConfig{
		S3Endpoint:         server.URL,
		S3BucketName:       "statements",
		S3Region:           "us-east-1",
		AwsAccessKeyId:     "key",
		AwsSecretAccessKey: "secret",
		Prefix:             "exports",
	})
	require.NoError(t, err)

	loc, err := a.Archive(context.Background(), "statements/123/x.csv", bytes.NewReader([]byte("hello")), ContentTypeCSV)
	require.NoError(t, err)
	assert.Contains(t, loc, "/statements/exports/statements/123/x.csv")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/statements/exports/statements/123/x.csv", path)
	assert.Equal(t, "hello", string(body))
}
