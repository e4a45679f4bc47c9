package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/mealprep-intake/internal/config"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// AWSClients holds one SDK client per AWS-backed component. A nil field
// means that component is not configured.
type AWSClients struct {
	SQS *sqs.Client // order event fan-out
	S3  *s3.Client  // intake snapshot archive
	SES *sesv2.Client
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.OrderEventsQueueURL != "" || cfg.ArchiveBucket != "" || cfg.EmailProvider == "ses"
}

// BuildAWSClients loads the SDK config once and creates only the clients the
// configuration asks for. It returns nil, nil when nothing uses AWS.
// AWS_ENDPOINT_OVERRIDE points every client at LocalStack; S3 then switches
// to path-style addressing.
func BuildAWSClients(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*AWSClients, error) {
	if !NeedsAWS(cfg) {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}

	clients := &AWSClients{}
	if cfg.OrderEventsQueueURL != "" {
		clients.SQS = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.BaseEndpoint = base })
	}
	if cfg.ArchiveBucket != "" {
		clients.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = base
			o.UsePathStyle = base != nil
		})
	}
	if cfg.EmailProvider == "ses" {
		clients.SES = sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) { o.BaseEndpoint = base })
	}

	logger.Info("aws clients configured",
		"region", awsCfg.Region,
		"endpoint_override", endpoint != "",
		"sqs", clients.SQS != nil,
		"s3", clients.S3 != nil,
		"ses", clients.SES != nil,
	)
	return clients, nil
}
