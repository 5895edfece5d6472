package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// mockClient implements Client for testing, the way sidechain's
// s3.MockClient does.
type mockClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	buckets map[string]bool

	HeadBucketErr error
	PutObjectErr  error
}

func newMockClient() *mockClient {
	return &mockClient{
		objects: make(map[string][]byte),
		buckets: map[string]bool{"archive-bucket": true},
	}
}

func (m *mockClient) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.HeadBucketErr != nil {
		return nil, m.HeadBucketErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buckets[*params.Bucket] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.PutObjectErr != nil {
		return nil, m.PutObjectErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*params.Bucket+"/"+*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestUploadChunk(t *testing.T) {
	client := newMockClient()
	a, err := New("archive-bucket", WithClient(client), WithPrefix("cold"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = a.UploadChunk(context.Background(), "Relational/movies", "/tmp/Storage/Relational/movies/chunk_3.csv", []byte("1,a\n2,b\n"))
	if err != nil {
		t.Fatalf("UploadChunk() error = %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	data, ok := client.objects["archive-bucket/cold/Relational/movies/chunk_3.csv"]
	if !ok {
		t.Fatal("expected object at cold/Relational/movies/chunk_3.csv")
	}
	if !bytes.Equal(data, []byte("1,a\n2,b\n")) {
		t.Errorf("uploaded data = %q, want %q", data, "1,a\n2,b\n")
	}
}

func TestNewBucketAccessError(t *testing.T) {
	client := newMockClient()
	client.HeadBucketErr = errors.New("access denied")

	if _, err := New("archive-bucket", WithClient(client)); err == nil {
		t.Fatal("expected error for bucket access failure")
	}
}

func TestNewMissingBucketReportsNotFound(t *testing.T) {
	client := newMockClient()

	_, err := New("no-such-bucket", WithClient(client))
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error = %q, want it to call out a missing bucket", err.Error())
	}
}
