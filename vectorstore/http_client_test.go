package vectorstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_UpsertSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collection/widgets/upsert", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.Upsert(context.Background(), Handle{Name: "widgets"}, []string{"a"}, []string{"text"}, []map[string]any{{"k": "v"}})
	require.NoError(t, err)
}

func TestHTTPClient_UpsertClassifiesDuplicateID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"duplicate","duplicate_ids":["a","b"]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.Upsert(context.Background(), Handle{Name: "widgets"}, []string{"a", "b"}, []string{"t1", "t2"}, nil)
	require.Error(t, err)

	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	require.Equal(t, ErrDuplicateID, upsertErr.Kind)
	require.Equal(t, []string{"a", "b"}, upsertErr.DuplicateIDs)
}

func TestHTTPClient_UpsertClassifiesTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.Upsert(context.Background(), Handle{Name: "widgets"}, []string{"a"}, []string{"t"}, nil)
	require.Error(t, err)

	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	require.True(t, upsertErr.Kind.IsTransient())
}

func TestHTTPClient_UpsertClassifiesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.Upsert(context.Background(), Handle{Name: "widgets"}, []string{"a"}, []string{"t"}, nil)

	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	require.Equal(t, ErrRateLimited, upsertErr.Kind)
	require.True(t, upsertErr.Kind.IsTransient())
}

func TestHTTPClient_UpsertClassifiesAuthFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.Upsert(context.Background(), Handle{Name: "widgets"}, []string{"a"}, []string{"t"}, nil)

	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	require.Equal(t, ErrAuthFailed, upsertErr.Kind)
	require.False(t, upsertErr.Kind.IsTransient())
}

func TestHTTPClient_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collection/widgets/query", r.URL.Path)
		_, _ = w.Write([]byte(`{"ids":[["a","b"]],"distances":[[0.1,0.2]],"documents":[["ta","tb"]],"metadatas":[[{},{}]]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	result, err := c.Query(context.Background(), Handle{Name: "widgets"}, []string{"x"}, 2, nil)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b"}}, result.IDs)
	require.Equal(t, [][]float64{{0.1, 0.2}}, result.Distances)
}

func TestHTTPClient_Count(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":42}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	n, err := c.Count(context.Background(), Handle{Name: "widgets"}, nil)
	require.NoError(t, err)
	require.Equal(t, 42, n)
}

func TestHTTPClient_WithAPIKeySendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil).WithAPIKey("sekret")
	err := c.Upsert(context.Background(), Handle{Name: "widgets"}, []string{"a"}, []string{"t"}, nil)
	require.NoError(t, err)
}

func TestHTTPClient_GetOrCreateCollectionToleratesConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	h, err := c.GetOrCreateCollection(context.Background(), "widgets")
	require.NoError(t, err)
	require.Equal(t, "widgets", h.Name)
}
