package searchsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
)

func newTestIndex(t *testing.T, h http.HandlerFunc) *PostIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	conf := &core.Config{}
	conf.Search.Addresses = []string{srv.URL}
	conf.Search.PostIndex = "posts"
	es, err := NewClient(conf)
	require.NoError(t, err)
	return NewPostIndex(es, conf)
}

func TestPostIndex_Index(t *testing.T) {
	var doc map[string]interface{}
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/posts/_doc/p1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"result":"created"}`)
	})

	err := idx.Index(context.Background(), blog.Post{
		ID:          "p1",
		OrgID:       "o1",
		Title:       "Moving to Lisbon",
		ContentHTML: "<p>Rent <b>first</b></p>",
		Tags:        []string{"portugal"},
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", doc["org_id"])
	assert.Equal(t, "Rent first", strings.TrimSpace(doc["body"].(string)))
	assert.NotContains(t, doc, "published_at")
}

func TestPostIndex_Remove(t *testing.T) {
	status := http.StatusNotFound
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, `{"result":"not_found"}`)
	})
	assert.NoError(t, idx.Remove(context.Background(), "p1"))

	status = http.StatusInternalServerError
	assert.Error(t, idx.Remove(context.Background(), "p1"))
}

func TestPostIndex_Search(t *testing.T) {
	var query map[string]interface{}
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		_, _ = fmt.Fprint(w, `{"hits":{"total":{"value":2},"hits":[{"_id":"p2"},{"_id":"p1"}]}}`)
	})

	ids, err := idx.Search(context.Background(), "o1", "lisbon", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, ids)
	assert.Equal(t, float64(10), query["size"])

	filter := query["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"org_id": "o1"}}, filter[0])
}

func TestPostIndex_SearchError(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"error":{"type":"parsing_exception","reason":"bad query"}}`)
	})
	_, err := idx.Search(context.Background(), "o1", "x", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing_exception")
}
