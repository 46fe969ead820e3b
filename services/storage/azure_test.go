package storagesvc

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// azurite's well-known development account
const devConnectionString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestAzureStorage_SignedURL(t *testing.T) {
	conf := &core.Config{}
	conf.Storage.ConnectionString = devConnectionString
	conf.Storage.Container = "files"
	s, err := NewAzureStorage(conf)
	require.NoError(t, err)

	raw, err := s.SignedURL(context.Background(), "org/123/book.epub", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "/devstoreaccount1/files/org/123/book.epub"), u.Path)
	q := u.Query()
	assert.Equal(t, "r", q.Get("sp"))
	assert.NotEmpty(t, q.Get("sig"))

	se, err := time.Parse(time.RFC3339, q.Get("se"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), se, time.Minute)
}

func TestNewAzureStorage_BadConnectionString(t *testing.T) {
	conf := &core.Config{}
	conf.Storage.ConnectionString = "nope"
	_, err := NewAzureStorage(conf)
	assert.Error(t, err)
}
