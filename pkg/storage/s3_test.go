package storage

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// fakeS3 serves objects from a map and records the Range headers it saw.
type fakeS3 struct {
	objects map[string][]byte
	ranges  []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	body := data
	if in.Range != nil {
		f.ranges = append(f.ranges, aws.ToString(in.Range))
		spec := strings.TrimPrefix(aws.ToString(in.Range), "bytes=")
		parts := strings.SplitN(spec, "-", 2)
		first, _ := strconv.Atoi(parts[0])
		last, _ := strconv.Atoi(parts[1])
		if last >= len(data) {
			last = len(data) - 1
		}
		body = data[first : last+1]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestS3OpenRange(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"corpus/a.feat": []byte("0123456789"),
	}}
	a := NewS3(fake, "bucket", "corpus")
	ctx := context.Background()

	rc, err := a.OpenRange(ctx, "a.feat", 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "23456" {
		t.Errorf("got %q", got)
	}
	if len(fake.ranges) != 1 || fake.ranges[0] != "bytes=2-6" {
		t.Errorf("ranges=%v", fake.ranges)
	}
}

func TestS3NotFound(t *testing.T) {
	a := NewS3(&fakeS3{objects: map[string][]byte{}}, "bucket", "")
	if _, err := a.OpenRange(context.Background(), "missing", 0, 1); err == nil {
		t.Fatal("expected error")
	}
	if _, err := a.Size(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestS3Size(t *testing.T) {
	a := NewS3(&fakeS3{objects: map[string][]byte{"x": make([]byte, 17)}}, "bucket", "")
	n, err := a.Size(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if n != 17 {
		t.Errorf("size=%d", n)
	}
}
