package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/chronoslack/chronoslack/pkg/utils/safe"
)

// DefaultAPIBase is the Slack Web API endpoint prefix
const DefaultAPIBase = "https://slack.com/api/"

// client implements Service on top of slack-go plus the two OAuth
// endpoints slack-go does not wrap
type client struct {
	clientID     string
	clientSecret string
	apiBase      string
	httpClient   *http.Client
}

// Option is a functional option for client configuration
type Option func(*client)

// WithAPIBase overrides the Slack API endpoint (tests)
func WithAPIBase(base string) Option {
	return func(c *client) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		c.apiBase = base
	}
}

// WithHTTPClient overrides the HTTP client used for API calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// New creates a Slack service with the app's OAuth client credentials
func New(clientID, clientSecret string, opts ...Option) (Service, error) {
	if clientID == "" || clientSecret == "" {
		return nil, goerr.New("Slack client ID and secret are required")
	}

	c := &client{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiBase:      DefaultAPIBase,
		httpClient:   http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *client) api(accessToken string) *slack.Client {
	return slack.New(accessToken,
		slack.OptionAPIURL(c.apiBase),
		slack.OptionHTTPClient(c.httpClient),
	)
}

// oauthResponse covers oauth.v2.access and oauth.v2.exchange. User-token
// material arrives under authed_user when the app uses user scopes;
// refresh responses carry it at the top level.
type oauthResponse struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Team         struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	AuthedUser struct {
		ID           string `json:"id"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	} `json:"authed_user"`
}

func (r *oauthResponse) grant() *TokenGrant {
	grant := &TokenGrant{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    r.ExpiresIn,
	}
	if r.AuthedUser.AccessToken != "" {
		grant.AccessToken = r.AuthedUser.AccessToken
		grant.RefreshToken = r.AuthedUser.RefreshToken
		grant.ExpiresIn = r.AuthedUser.ExpiresIn
	}
	return grant
}

// postForm calls an OAuth endpoint with form-encoded parameters
func (c *client) postForm(ctx context.Context, method string, params url.Values) (*oauthResponse, error) {
	encoded := params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+method, strings.NewReader(encoded))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("method", method))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.ContentLength = int64(len(encoded))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call Slack API", goerr.V("method", method))
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body", goerr.V("method", method))
	}

	var oauthResp oauthResponse
	if err := json.Unmarshal(body, &oauthResp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse response", goerr.V("method", method))
	}

	if !oauthResp.OK {
		return nil, goerr.New("slack api error",
			goerr.V("method", method),
			goerr.V("error", oauthResp.Error))
	}

	return &oauthResp, nil
}

func (c *client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenGrant, *Identity, error) {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)
	params.Set("code", code)
	params.Set("redirect_uri", redirectURI)

	resp, err := c.postForm(ctx, "oauth.v2.access", params)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to exchange authorization code")
	}

	identity := &Identity{
		UserID:   resp.AuthedUser.ID,
		TeamID:   resp.Team.ID,
		TeamName: resp.Team.Name,
	}
	if identity.UserID == "" {
		return nil, nil, goerr.New("oauth response has no authed user")
	}

	return resp.grant(), identity, nil
}

func (c *client) ExchangeLongLivedToken(ctx context.Context, accessToken string) (*TokenGrant, error) {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)
	params.Set("token", accessToken)

	resp, err := c.postForm(ctx, "oauth.v2.exchange", params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to exchange long-lived token")
	}

	return resp.grant(), nil
}

func (c *client) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", refreshToken)

	resp, err := c.postForm(ctx, "oauth.v2.access", params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to refresh token")
	}

	return resp.grant(), nil
}

func (c *client) ValidateToken(ctx context.Context, accessToken string) error {
	if _, err := c.api(accessToken).AuthTestContext(ctx); err != nil {
		return goerr.Wrap(err, "token validation failed")
	}
	return nil
}

func (c *client) ListChannels(ctx context.Context, accessToken string) ([]Channel, error) {
	api := c.api(accessToken)

	var channels []Channel
	var cursor string

	for {
		params := &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel"},
			ExcludeArchived: true,
			Limit:           100,
			Cursor:          cursor,
		}

		convs, nextCursor, err := api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get conversations")
		}

		for _, conv := range convs {
			// Only channels the user can post to
			if conv.IsMember {
				channels = append(channels, Channel{
					ID:   conv.ID,
					Name: conv.Name,
				})
			}
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return channels, nil
}

func (c *client) PostMessage(ctx context.Context, accessToken, channelID, text string) error {
	_, _, err := c.api(accessToken).PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return goerr.Wrap(err, "failed to post message", goerr.V("channelID", channelID))
	}
	return nil
}
