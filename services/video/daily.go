// Package videosvc implements meeting.Provider on the Daily REST API.
package videosvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
)

type DailyProvider struct {
	baseURL string
	apiKey  string
}

var _ meeting.Provider = (*DailyProvider)(nil)

func NewDailyProvider(conf *core.Config) *DailyProvider {
	return &DailyProvider{baseURL: conf.Video.BaseURL, apiKey: conf.Video.APIKey}
}

func (p *DailyProvider) Name() string { return "daily" }

// do sends body as JSON and decodes a 2xx answer into dst.
func (p *DailyProvider) do(ctx context.Context, method rest.Method, path string, body, dst interface{}) error {
	req := rest.Request{
		Method:  method,
		BaseURL: p.baseURL + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + p.apiKey,
			"Content-Type":  "application/json",
		},
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Body = b
	}

	res, err := rest.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "daily %s %s", method, path)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("daily %s %s: status %d: %s", method, path, res.StatusCode, res.Body)
	}
	if dst == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(res.Body), dst), "decoding daily response")
}

func (p *DailyProvider) CreateRoom(ctx context.Context, params meeting.RoomParams) (meeting.ProviderRoom, error) {
	props := map[string]interface{}{"exp": params.ExpiresAt.Unix()}
	if params.MaxParticipants > 0 {
		props["max_participants"] = params.MaxParticipants
	}
	var res struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	err := p.do(ctx, rest.Post, "/rooms", map[string]interface{}{"privacy": "private", "properties": props}, &res)
	if err != nil {
		return meeting.ProviderRoom{}, err
	}
	return meeting.ProviderRoom{Name: res.Name, URL: res.URL}, nil
}

func (p *DailyProvider) DeleteRoom(ctx context.Context, name string) error {
	return p.do(ctx, rest.Delete, "/rooms/"+url.PathEscape(name), nil, nil)
}

func (p *DailyProvider) CreateToken(ctx context.Context, params meeting.TokenParams) (string, error) {
	props := map[string]interface{}{
		"room_name": params.RoomName,
		"user_name": params.UserName,
		"user_id":   params.UserID,
		"is_owner":  params.IsOwner,
		"exp":       params.ExpiresAt.Unix(),
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := p.do(ctx, rest.Post, "/meeting-tokens", map[string]interface{}{"properties": props}, &res); err != nil {
		return "", err
	}
	return res.Token, nil
}
