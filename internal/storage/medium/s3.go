// s3.go — документ как один объект в S3-совместимом хранилище.
// Версия — ETag объекта; CAS через условный PutObject
// (If-Match для обновления, If-None-Match: * для создания).
package medium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API — подмножество клиента S3, используемое носителем.
// Реализуется *s3.Client.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ClientConfig — параметры подключения к S3.
type S3ClientConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client создаёт клиент S3 со статическими учётными данными.
// Endpoint задаётся явно и используется path-style адресация (MinIO и аналоги).
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return client, nil
}

// S3Medium — носитель-объект S3.
type S3Medium struct {
	client S3API
	bucket string
	key    string
}

// NewS3Medium создаёт носитель для объекта bucket/key.
func NewS3Medium(client S3API, bucket, key string) *S3Medium {
	return &S3Medium{client: client, bucket: bucket, key: key}
}

// Name возвращает описание носителя.
func (m *S3Medium) Name() string {
	return "s3://" + m.bucket + "/" + m.key
}

// Read скачивает объект целиком.
func (m *S3Medium) Read(ctx context.Context) (*Snapshot, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка чтения %s: %w", m.Name(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения тела %s: %w", m.Name(), err)
	}

	return &Snapshot{Data: data, Version: aws.ToString(out.ETag)}, nil
}

// Write загружает объект при совпадении ETag.
func (m *S3Medium) Write(ctx context.Context, data []byte, expected string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(m.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	}
	if expected == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(expected)
	}

	out, err := m.client.PutObject(ctx, input)
	if err != nil {
		if isS3Conflict(err) {
			return "", fmt.Errorf("%w: %s: %w", ErrVersionConflict, m.Name(), err)
		}
		return "", fmt.Errorf("ошибка записи %s: %w", m.Name(), err)
	}
	return aws.ToString(out.ETag), nil
}

// isS3NotFound распознаёт отсутствие объекта.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// isS3Conflict распознаёт несработавшее условие записи.
func isS3Conflict(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
