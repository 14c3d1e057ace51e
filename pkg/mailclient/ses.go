package mailclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SendEmailAPI is the subset of the SES v2 client used here.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SES sends the same raw MIME the SMTP transport would, through the SES v2 API.
type SES struct {
	client SendEmailAPI
}

var _ MailTransport = (*SES)(nil)

// NewSES loads the default AWS config chain. Static keys take precedence when both are set.
func NewSES(ctx context.Context, cfg SESConfig) (*SES, error) {
	opts := make([]func(*awsconfig.LoadOptions) error, 0)
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config error: %w", err)
	}

	return NewSESWithClient(sesv2.NewFromConfig(awsCfg)), nil
}

func NewSESWithClient(client SendEmailAPI) *SES {
	return &SES{client: client}
}

func (s *SES) Name() string {
	return "ses"
}

func (s *SES) Send(ctx context.Context, email *Email) error {
	raw, err := Compose(email)
	if err != nil {
		return err
	}

	_, err = s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(email.From),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send email error: %w", err)
	}

	return nil
}
