// Package searchsvc indexes published blog posts in Elasticsearch.
package searchsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
)

type postDoc struct {
	OrgID       string   `json:"org_id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Excerpt     string   `json:"excerpt"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	PublishedAt string   `json:"published_at,omitempty"`
}

type PostIndex struct {
	es    *elasticsearch.Client
	index string
}

var _ blog.Indexer = (*PostIndex)(nil)

func NewClient(conf *core.Config) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{Addresses: conf.Search.Addresses}
	if conf.Search.Username != "" {
		cfg.Username = conf.Search.Username
		cfg.Password = conf.Search.Password
	}
	es, err := elasticsearch.NewClient(cfg)
	return es, errors.Wrap(err, "creating elasticsearch client")
}

func NewPostIndex(es *elasticsearch.Client, conf *core.Config) *PostIndex {
	return &PostIndex{es: es, index: conf.Search.PostIndex}
}

func responseErr(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Error.Type != "" {
		return errors.Errorf("elasticsearch %s: %s: %s: %s", op, res.Status(), body.Error.Type, body.Error.Reason)
	}
	return errors.Errorf("elasticsearch %s: %s", op, res.Status())
}

func (idx *PostIndex) Index(ctx context.Context, p blog.Post) error {
	doc := postDoc{
		OrgID:   p.OrgID,
		Title:   p.Title,
		Slug:    p.Slug,
		Excerpt: p.Excerpt,
		Body:    blog.PlainText(p.ContentHTML),
		Tags:    p.Tags,
	}
	if p.PublishedAt.Valid {
		doc.PublishedAt = p.PublishedAt.Time.UTC().Format("2006-01-02T15:04:05Z")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      idx.index,
		DocumentID: p.ID,
		Body:       bytes.NewReader(b),
	}.Do(ctx, idx.es)
	if err != nil {
		return errors.Wrap(err, "elasticsearch index")
	}
	defer res.Body.Close()
	return responseErr(res, "index")
}

// Remove ignores documents that were never indexed.
func (idx *PostIndex) Remove(ctx context.Context, id string) error {
	res, err := esapi.DeleteRequest{Index: idx.index, DocumentID: id}.Do(ctx, idx.es)
	if err != nil {
		return errors.Wrap(err, "elasticsearch delete")
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseErr(res, "delete")
}

func (idx *PostIndex) Search(ctx context.Context, orgID, q string, limit int) ([]string, error) {
	query := map[string]interface{}{
		"size":    limit,
		"_source": false,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"org_id": orgID}},
				},
				"must": []interface{}{
					map[string]interface{}{"multi_match": map[string]interface{}{
						"query":     q,
						"fields":    []string{"title^3", "tags^2", "excerpt", "body"},
						"fuzziness": "AUTO",
					}},
				},
			},
		},
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := esapi.SearchRequest{Index: []string{idx.index}, Body: bytes.NewReader(b)}.Do(ctx, idx.es)
	if err != nil {
		return nil, errors.Wrap(err, "elasticsearch search")
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return []string{}, nil // index not created yet
	}
	if err := responseErr(res, "search"); err != nil {
		return nil, err
	}

	var body struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decoding search response")
	}
	ids := make([]string, 0, len(body.Hits.Hits))
	for _, h := range body.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}
