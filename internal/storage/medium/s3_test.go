package medium

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// fakeS3 — объектное хранилище в памяти с условной записью,
// повторяющее семантику If-Match / If-None-Match.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
		ETag: aws.String(etagOf(data)),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.putErr != nil {
		return nil, f.putErr
	}

	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	current, exists := f.objects[key]

	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	if in.IfMatch != nil && (!exists || etagOf(current) != aws.ToString(in.IfMatch)) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	return &s3.PutObjectOutput{ETag: aws.String(etagOf(data))}, nil
}

// TestS3Medium_CAS проверяет условную запись объекта.
func TestS3Medium_CAS(t *testing.T) {
	checkCAS(t, NewS3Medium(newFakeS3(), "packages", "store/packages.json"))
}

// TestS3Medium_WriteError проверяет, что прочие ошибки не считаются конфликтом.
func TestS3Medium_WriteError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	m := NewS3Medium(fake, "packages", "packages.json")

	_, err := m.Write(context.Background(), []byte("{}"), "")
	if err == nil {
		t.Fatal("ожидалась ошибка записи")
	}
	if errors.Is(err, ErrVersionConflict) {
		t.Errorf("AccessDenied не должна распознаваться как конфликт: %v", err)
	}
}

// TestS3Medium_NotFoundCodes проверяет распознавание отсутствия объекта.
func TestS3Medium_NotFoundCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey тип", &types.NoSuchKey{}, true},
		{"NotFound код", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"AccessDenied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"обычная ошибка", errors.New("сеть недоступна"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Errorf("ожидалось %v, получено %v", tt.want, got)
			}
		})
	}
}

// TestS3Medium_Name проверяет описание носителя.
func TestS3Medium_Name(t *testing.T) {
	m := NewS3Medium(newFakeS3(), "bucket", "a/b.json")
	if m.Name() != "s3://bucket/a/b.json" {
		t.Errorf("получено %q", m.Name())
	}
}
