package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/chronoslack/chronoslack/pkg/service/slack"
)

// Slack holds CLI flags for the Slack OAuth app credentials
type Slack struct {
	clientID     string
	clientSecret string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-client-id",
			Usage:       "Slack OAuth client ID",
			Category:    "Slack",
			Destination: &x.clientID,
			Sources:     cli.EnvVars("CHRONOSLACK_SLACK_CLIENT_ID"),
		},
		&cli.StringFlag{
			Name:        "slack-client-secret",
			Usage:       "Slack OAuth client secret",
			Category:    "Slack",
			Destination: &x.clientSecret,
			Sources:     cli.EnvVars("CHRONOSLACK_SLACK_CLIENT_SECRET"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("client-id.len", len(x.clientID)),
		slog.Int("client-secret.len", len(x.clientSecret)),
	)
}

// ClientID returns the Slack OAuth client ID
func (x *Slack) ClientID() string {
	return x.clientID
}

// Configure creates the Slack service from the app credentials
func (x *Slack) Configure() (slack.Service, error) {
	if x.clientID == "" || x.clientSecret == "" {
		return nil, goerr.New("Slack OAuth configuration is required: set --slack-client-id and --slack-client-secret")
	}

	return slack.New(x.clientID, x.clientSecret)
}
