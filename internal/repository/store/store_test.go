package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string    `bson:"name"`
	Qty    int       `bson:"qty"`
	At     time.Time `bson:"at"`
	Photos []string  `bson:"photos,omitempty"`
}

func TestEncodeDecodeKeepsFields(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	doc, err := Encode(sample{Name: "a", Qty: 3, At: at, Photos: []string{"p1"}})
	require.NoError(t, err)
	doc[KeyField] = "key-1"

	var out sample
	require.NoError(t, Decode(doc, &out))
	assert.Equal(t, "a", out.Name)
	assert.Equal(t, 3, out.Qty)
	assert.True(t, at.Equal(out.At))
	assert.Equal(t, []string{"p1"}, out.Photos)
}

func TestDecodeAllSkipsMismatchedDocuments(t *testing.T) {
	docs := []Document{
		{"name": "ok", "qty": 1},
		{"name": "bad", "qty": "many"},
	}

	out, skipped := DecodeAll[sample](docs)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Name)
	assert.Equal(t, 1, skipped)
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(fmt.Errorf("fetch: %w", ErrPermissionDenied)))
	assert.True(t, Recoverable(ErrUnavailable))
	assert.False(t, Recoverable(ErrNotFound))
	assert.False(t, Recoverable(nil))
}

func TestCloneDocumentIsIndependent(t *testing.T) {
	doc := Document{"name": "a"}
	clone := CloneDocument(doc)
	clone["name"] = "b"

	assert.Equal(t, "a", doc["name"])
	assert.Nil(t, CloneDocument(nil))
}
