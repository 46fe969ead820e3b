package videosvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *DailyProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	conf := &core.Config{}
	conf.Video.BaseURL = srv.URL
	conf.Video.APIKey = "daily-key"
	return NewDailyProvider(conf)
}

func TestDailyProvider_CreateRoom(t *testing.T) {
	exp := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "Bearer daily-key", r.Header.Get("Authorization"))

		var body struct {
			Privacy    string                 `json:"privacy"`
			Properties map[string]interface{} `json:"properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "private", body.Privacy)
		assert.Equal(t, float64(exp.Unix()), body.Properties["exp"])
		assert.Equal(t, float64(8), body.Properties["max_participants"])
		_, _ = fmt.Fprint(w, `{"name":"abc123","url":"https://org.daily.co/abc123"}`)
	})

	room, err := p.CreateRoom(context.Background(), meeting.RoomParams{MaxParticipants: 8, ExpiresAt: exp})
	require.NoError(t, err)
	assert.Equal(t, meeting.ProviderRoom{Name: "abc123", URL: "https://org.daily.co/abc123"}, room)
}

func TestDailyProvider_CreateToken(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meeting-tokens", r.URL.Path)
		var body struct {
			Properties map[string]interface{} `json:"properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc123", body.Properties["room_name"])
		assert.Equal(t, true, body.Properties["is_owner"])
		_, _ = fmt.Fprint(w, `{"token":"tok"}`)
	})

	token, err := p.CreateToken(context.Background(), meeting.TokenParams{RoomName: "abc123", UserName: "Jane", UserID: "u1", IsOwner: true, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestDailyProvider_DeleteRoom(t *testing.T) {
	status := http.StatusOK
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/rooms/abc123", r.URL.Path)
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, `{"deleted":true}`)
	})

	require.NoError(t, p.DeleteRoom(context.Background(), "abc123"))

	status = http.StatusNotFound
	err := p.DeleteRoom(context.Background(), "abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
