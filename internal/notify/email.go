package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/safar/go-sql-shop/internal/config"
)

const EmailChannelName = "email"

// EmailSender is the subset of *ses.Client the email channel uses.
type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type EmailChannel struct {
	client EmailSender
	sender string
}

// NewSESClient builds an SES client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewSESClient(ctx context.Context, cfg config.EmailConfig) (*ses.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return ses.NewFromConfig(awsCfg), nil
}

func NewEmailChannel(client EmailSender, sender string) *EmailChannel {
	return &EmailChannel{client: client, sender: sender}
}

func (c *EmailChannel) Name() string { return EmailChannelName }

func (c *EmailChannel) Send(ctx context.Context, d Delivery) (int, error) {
	if d.Recipient.Email == "" {
		return 0, ErrNoRecipient
	}

	input := &ses.SendEmailInput{
		Source: aws.String(c.sender),
		Destination: &types.Destination{
			ToAddresses: []string{d.Recipient.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(d.Message.Title),
			},
			Body: &types.Body{
				Text: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(d.Message.Body),
				},
			},
		},
	}

	if _, err := c.client.SendEmail(ctx, input); err != nil {
		return 0, fmt.Errorf("send email: %w", err)
	}

	return 1, nil
}
