package gdrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchContent_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "pdf", r.URL.Query().Get("exportFormat"))
		_, _ = w.Write([]byte("file contents"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	content, err := client.FetchContent(context.Background(), srv.URL+"/export?exportFormat=pdf")
	require.NoError(t, err)
	defer content.Body.Close()

	assert.True(t, content.OK())
	assert.Equal(t, http.StatusOK, content.StatusCode)
	assert.Equal(t, int64(len("file contents")), content.Length)

	data, err := io.ReadAll(content.Body)
	require.NoError(t, err)
	assert.Equal(t, "file contents", string(data))
}

func TestFetchContent_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	content, err := client.FetchContent(context.Background(), srv.URL)
	require.NoError(t, err)
	defer content.Body.Close()

	assert.True(t, content.OK())

	data, err := io.ReadAll(content.Body)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFetchContent_NonSuccessIsNotAnError(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("backend exploded"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	content, err := client.FetchContent(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.False(t, content.OK())
	assert.Equal(t, http.StatusInternalServerError, content.StatusCode)
	assert.Equal(t, "500 Internal Server Error", content.Status)
	assert.Nil(t, content.Body)
	assert.Equal(t, 1, calls, "content fetches are single-attempt")
}

func TestFetchContent_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.FetchContent(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsAuthFailure(err))
}

func TestFetchContent_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Promise more bytes than are sent, then drop the connection.
		w.Header().Set("Content-Length", strconv.Itoa(1024))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short"))

		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}

		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	content, err := client.FetchContent(context.Background(), srv.URL)
	require.NoError(t, err)
	defer content.Body.Close()

	assert.Equal(t, int64(1024), content.Length)

	_, err = io.ReadAll(content.Body)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteTransfer)
}

func TestFetchContent_RequestFailure(t *testing.T) {
	client := newTestClient(t, "http://unused")

	_, err := client.FetchContent(context.Background(), "http://127.0.0.1:1/file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content request failed")
}

func TestFetchContent_TokenRevoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, http.DefaultClient, &errToken{err: ErrCredentialsRevoked}, nil, "")
	require.NoError(t, err)

	_, err = client.FetchContent(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialsRevoked)
}
