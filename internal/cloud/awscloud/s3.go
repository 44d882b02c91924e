package awscloud

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Objects is the S3 implementation of cloud.Objects, scoped to one bucket.
type Objects struct {
	client *s3.Client
	bucket string
}

func (o *Objects) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return classify("s3 put object", err)
}

func (o *Objects) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("s3 get object", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object %s: %w", key, err)
	}
	return body, nil
}

func (o *Objects) List(ctx context.Context, in cloud.ListInput) (cloud.ListPage, error) {
	req := &s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(in.Prefix),
	}
	if in.StartAfter != "" {
		req.StartAfter = aws.String(in.StartAfter)
	}
	if in.ContinuationToken != "" {
		req.ContinuationToken = aws.String(in.ContinuationToken)
	}
	if in.MaxKeys > 0 {
		req.MaxKeys = aws.Int32(int32(in.MaxKeys))
	}

	out, err := o.client.ListObjectsV2(ctx, req)
	if err != nil {
		return cloud.ListPage{}, classify("s3 list objects", err)
	}

	page := cloud.ListPage{
		Keys:      make([]string, 0, len(out.Contents)),
		Truncated: aws.ToBool(out.IsTruncated),
		NextToken: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		page.Keys = append(page.Keys, aws.ToString(obj.Key))
	}
	return page, nil
}

// Delete is idempotent on S3: deleting a missing key succeeds.
func (o *Objects) Delete(ctx context.Context, key string) error {
	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	return classify("s3 delete object", err)
}
