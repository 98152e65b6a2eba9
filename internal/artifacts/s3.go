package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Store struct {
	client *s3.Client
}

// NewS3Store builds a client for AWS or any S3-compatible endpoint. Static
// credentials are used when an access key is given; otherwise the default
// credential chain applies.
func NewS3Store(ctx context.Context, region, endpoint, accessKey, secretKey string) (*S3Store, error) {
	loadOpts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(region),
	}
	if accessKey != "" {
		loadOpts = append(loadOpts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client}, nil
}

func (s *S3Store) LoadJSON(ctx context.Context, location ObjectLocation) (json.RawMessage, error) {
	payload, _, err := s.LoadObject(ctx, location)
	if err != nil {
		return nil, err
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("object is not valid json: %s", location)
	}

	return json.RawMessage(payload), nil
}

func (s *S3Store) LoadObject(ctx context.Context, location ObjectLocation) ([]byte, string, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(location.Bucket),
		Key:    aws.String(location.Key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", location, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read object %s: %w", location, err)
	}

	contentType := ""
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}

	return bytes.TrimSpace(payload), contentType, nil
}

func (s *S3Store) Close() error {
	return nil
}
