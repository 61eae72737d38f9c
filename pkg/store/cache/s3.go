package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 is the shared cache tier. Objects are written with AES256 server-side
// encryption; since S3 has no per-object TTL, entries carry a creation
// timestamp and expiry is enforced on read.
type S3 struct {
	client   s3API
	bucket   string
	policies map[Category]Policy
	now      func() time.Time
}

func NewS3(client s3API, bucket string, policies map[Category]Policy) *S3 {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &S3{
		client:   client,
		bucket:   bucket,
		policies: policies,
		now:      time.Now,
	}
}

type envelope struct {
	CreatedAt time.Time `json:"created_at"`
	Value     []byte    `json:"value"`
}

func (c *S3) Get(ctx context.Context, cat Category, key string) ([]byte, bool) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(cat, key)),
	})
	if err != nil {
		return nil, false
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	if c.now().Sub(env.CreatedAt) > c.ttl(cat) {
		return nil, false
	}
	return env.Value, true
}

func (c *S3) Set(ctx context.Context, cat Category, key string, value []byte) error {
	payload, err := json.Marshal(envelope{CreatedAt: c.now(), Value: value})
	if err != nil {
		return fmt.Errorf("marshaling cache envelope: %w", err)
	}

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(c.bucket),
		Key:                  aws.String(c.objectKey(cat, key)),
		Body:                 bytes.NewReader(payload),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("writing cache object %s: %w", c.objectKey(cat, key), err)
	}
	return nil
}

func (c *S3) objectKey(cat Category, key string) string {
	return path.Join("cache", string(cat), key+".json")
}

func (c *S3) ttl(cat Category) time.Duration {
	if p, ok := c.policies[cat]; ok && p.TTL > 0 {
		return p.TTL
	}
	return time.Hour
}
