package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestDeadLetterKey(t *testing.T) {
	at := time.Date(2024, 3, 31, 23, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	assert.Equal(t, "dead-letters/2024/04/evt_123.json", DeadLetterKey("evt_123", at))
	assert.Equal(t, "dead-letters/2024/04/hash:abc.json", DeadLetterKey("hash:abc", at))
	assert.Equal(t, "dead-letters/2024/04/a_b.json", DeadLetterKey("a/b", at))
	assert.Contains(t, DeadLetterKey("  ", at), "dead-letters/2024/04/unknown-")
}

func TestPutDeadLetter(t *testing.T) {
	api := &fakePutter{}
	c := NewClientWithAPI(api, "storefront-dead-letters")
	payload := []byte(`{"event":"PAYMENT_RECEIVED"}`)

	res, err := c.PutDeadLetter(context.Background(), "evt_9", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), payload, map[string]string{"reason": "not_found"})
	require.NoError(t, err)
	assert.Equal(t, "dead-letters/2024/06/evt_9.json", res.ObjectKey)
	assert.Equal(t, int64(len(payload)), res.Size)

	require.NotNil(t, api.input)
	assert.Equal(t, "storefront-dead-letters", aws.ToString(api.input.Bucket))
	assert.Equal(t, "application/json", aws.ToString(api.input.ContentType))
	assert.Equal(t, "not_found", api.input.Metadata["reason"])
	assert.Equal(t, payload, api.body)
}

func TestPutDeadLetter_Error(t *testing.T) {
	c := NewClientWithAPI(&fakePutter{err: errors.New("access denied")}, "b")
	_, err := c.PutDeadLetter(context.Background(), "evt", time.Now(), []byte(`{}`), nil)
	assert.ErrorContains(t, err, "access denied")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("ARCHIVE_S3_ENABLED", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())

	t.Setenv("ARCHIVE_S3_ENABLED", "true")
	t.Setenv("ARCHIVE_S3_BUCKET", "")
	_, err = LoadConfig()
	assert.Error(t, err, "bucket is required when enabled")

	t.Setenv("ARCHIVE_S3_ACCESS_KEY_ID", "AKIA")
	t.Setenv("ARCHIVE_S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("ARCHIVE_S3_BUCKET", "dead-letters")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "dead-letters", cfg.BucketName)
}
