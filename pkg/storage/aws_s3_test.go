package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  []string
	putErr  error
	pages   [][]types.Object
	listErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-1"`)}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := 0
	if in.ContinuationToken != nil {
		page = len(aws.ToString(in.ContinuationToken))
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strings.Repeat("n", page+1))
	}
	return out, nil
}

func TestAWSS3UploadIsPrivateAndEncrypted(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	s := NewAWSS3StorageFromClient(fake, &AWSS3Config{Region: "ap-south-1", Bucket: "evidence"})

	resp, err := s.Upload(context.Background(), &UploadRequest{
		Key:         "sos/abc123/audio/a.wav",
		Reader:      strings.NewReader("RIFF"),
		ContentType: "audio/wav",
		Size:        4,
		Metadata:    map[string]string{"sosAlertId": "abc123"},
	})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if resp.URL != "https://evidence.s3.ap-south-1.amazonaws.com/sos/abc123/audio/a.wav" {
		t.Errorf("URL = %q", resp.URL)
	}
	if resp.ETag != `"etag-1"` {
		t.Errorf("ETag = %q", resp.ETag)
	}

	in := fake.puts[0]
	if in.ACL != types.ObjectCannedACLPrivate {
		t.Errorf("ACL = %q, want private", in.ACL)
	}
	if in.ServerSideEncryption != types.ServerSideEncryptionAes256 {
		t.Errorf("SSE = %q, want AES256", in.ServerSideEncryption)
	}
	if aws.ToInt64(in.ContentLength) != 4 || in.Metadata["sosAlertId"] != "abc123" {
		t.Errorf("input = %+v", in)
	}
	if fake.bodies[0] != "RIFF" {
		t.Errorf("body = %q", fake.bodies[0])
	}
}

func TestAWSS3UploadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("throttled")
	s := NewAWSS3StorageFromClient(&fakeS3{putErr: boom}, &AWSS3Config{Bucket: "evidence"})
	_, err := s.Upload(context.Background(), &UploadRequest{Key: "k", Reader: strings.NewReader("x")})
	if !errors.Is(err, boom) {
		t.Fatalf("Upload() = %v, want wrapped %v", err, boom)
	}
}

func TestAWSS3ListFilesFollowsPages(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{pages: [][]types.Object{
		{{Key: aws.String("sos/abc123/audio/a.wav"), Size: aws.Int64(10)}},
		{{Key: aws.String("sos/abc123/photo/b.jpg"), Size: aws.Int64(20)}},
	}}
	s := NewAWSS3StorageFromClient(fake, &AWSS3Config{Region: "ap-south-1", Bucket: "evidence", CDNDomain: "cdn.example"})

	files, err := s.ListFiles(context.Background(), "sos/abc123/")
	if err != nil {
		t.Fatalf("ListFiles() error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListFiles() returned %d files, want 2", len(files))
	}
	if files[1].Key != "sos/abc123/photo/b.jpg" || files[1].Size != 20 {
		t.Errorf("second file = %+v", files[1])
	}
	if files[0].URL != "https://cdn.example/sos/abc123/audio/a.wav" {
		t.Errorf("URL = %q", files[0].URL)
	}
}
