package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestHasher_SaltAndHash(t *testing.T) {
	h := NewHasher(WithIterations(1000), WithSaltSize(16))

	salt, err := h.SaltBase64()
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(salt)
	require.NoError(t, err)
	assert.Len(t, raw, 16)

	other, err := h.SaltBase64()
	require.NoError(t, err)
	assert.NotEqual(t, salt, other)

	first, err := h.HashBase64("secret", salt)
	require.NoError(t, err)
	second, err := h.HashBase64("secret", salt)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same text and salt hash the same")

	key, err := base64.StdEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	different, err := h.HashBase64("secret", other)
	require.NoError(t, err)
	assert.NotEqual(t, first, different)

	_, err = h.HashBase64("secret", "not base64!")
	assert.Error(t, err)
}

func TestHasher_Deterministic(t *testing.T) {
	h := NewHasher(WithRandom(bytes.NewReader(bytes.Repeat([]byte{7}, 64))), WithSaltSize(8))
	salt, err := h.SaltBase64()
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 8)), salt)
}

func postForm(h http.Handler, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/tools/crypto", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Hash(t *testing.T) {
	hasher := NewHasher(WithIterations(1000))
	rec := postForm(NewHandler(hasher, nil), url.Values{TextParam: {"hello"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	want, err := hasher.HashBase64("hello", res.Salt)
	require.NoError(t, err)
	assert.Equal(t, want, res.Hash)
}

func TestHandler_MissingText(t *testing.T) {
	rec := postForm(NewHandler(NewHasher(), nil), url.Values{})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, MissingTextMessage, rec.Body.String())
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(NewHasher(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/crypto?text=x", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestHandler_SaltFailure(t *testing.T) {
	h := NewHandler(NewHasher(WithRandom(failingReader{})), nil)
	rec := postForm(h, url.Values{TextParam: {"hello"}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
