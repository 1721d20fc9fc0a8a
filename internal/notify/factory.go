package notify

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/rs/zerolog"
)

const defaultFromName = "Smart Doctor Assistant"

type Config struct {
	Provider       string // sendgrid, ses, stub
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	AWSRegion      string
}

// New picks the sender for cfg.Provider. A provider that is selected but
// missing its credentials falls back to the stub so booking keeps working;
// the stub reports every message as not sent.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (EmailSender, error) {
	logger = logger.With().Str("component", "notify").Logger()

	switch cfg.Provider {
	case "sendgrid":
		if s := NewSendGridSender(SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger); s != nil {
			return s, nil
		}
		logger.Warn().Msg("SENDGRID_API_KEY not set, falling back to stub email sender")
		return NewStubEmailSender(logger), nil
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewSESSender(sesv2.NewFromConfig(awsCfg), SESConfig{FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger), nil
	case "", "stub":
		return NewStubEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
