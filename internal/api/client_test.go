package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yomu/internal/domain"
)

func TestChapters_ResolvedIdentityAndLegacyFieldNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chapters", r.URL.Path)
		assert.Equal(t, "cat-99", r.URL.Query().Get("catalog"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"chapters": [
				{"id": "c1", "number": "1", "title": "Opening"},
				{"id": "c2", "chapter": "2", "group": "scans"}
			],
			"total": 2,
			"resolvedSourceId": "srcA",
			"resolvedTitleId": "t-42"
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	page, err := client.Chapters(context.Background(), domain.ChapterRequest{
		TitleID:           "agg-1",
		ExternalCatalogID: "cat-99",
		Limit:             100,
	})
	require.NoError(t, err)

	assert.Equal(t, "srcA", page.ResolvedSourceID)
	assert.Equal(t, "t-42", page.ResolvedTitleID)
	require.Len(t, page.Chapters, 2)
	assert.Equal(t, "1", page.Chapters[0].Number)
	// The legacy "chapter" field normalizes into Number.
	assert.Equal(t, "2", page.Chapters[1].Number)
	assert.Equal(t, "scans", page.Chapters[1].ScanlationGroup)
}

func TestUpdateProgress_KeyEscapedInPath(t *testing.T) {
	var gotPath string
	var gotPayload domain.ProgressPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	err := client.UpdateProgress(context.Background(), "srcA:t-42", domain.ProgressPayload{
		Key: "srcA:t-42", ChapterLabel: "3", ChapterID: "c3", Page: 7, PageTotal: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/library/srcA:t-42/progress", gotPath)
	assert.Equal(t, 7, gotPayload.Page)
}

func TestDoRequest_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/search":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad", nil)

	_, err := client.Search(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)

	_, err = client.Pages(context.Background(), "nope", "srcA")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDoRequest_UnreachableServer(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "tok", nil)

	_, err := client.Search(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrServerOffline)
}

func TestDoRequest_CancellationIsNotAnOfflineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
