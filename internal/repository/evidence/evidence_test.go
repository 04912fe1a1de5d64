package evidence

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineUploaderKeepsPayload(t *testing.T) {
	ref, err := InlineUploader{}.Upload(context.Background(), "a.jpg", "abc")

	require.NoError(t, err)
	assert.Equal(t, "abc", ref)
}

func TestDecodePayload(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	data, err := DecodePayload("data:image/jpeg;base64," + raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	data, err = DecodePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	_, err = DecodePayload("%%%")
	assert.ErrorIs(t, err, ErrInvalidPhoto)
}

func TestIsReference(t *testing.T) {
	assert.True(t, IsReference("gs://bucket/evidence/a.jpg"))
	assert.True(t, IsReference("https://example.com/a.jpg"))
	assert.False(t, IsReference("aGVsbG8="))
}
