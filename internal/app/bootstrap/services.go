package bootstrap

import (
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/mealprep-intake/internal/config"
	"github.com/wolfman30/mealprep-intake/internal/events"
	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/internal/intake/backendclient"
	"github.com/wolfman30/mealprep-intake/internal/notify"
	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/internal/payments"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// BuildMailer selects the order email transport. SendGrid and SES fall back
// to the log mailer when their credentials are missing.
func BuildMailer(cfg *appconfig.Config, clients *AWSClients, logger *logging.Logger) notify.Mailer {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		from := notify.Identity{Email: cfg.SendGridFromEmail, Name: cfg.SendGridFromName, ReplyTo: cfg.EmailReplyTo}
		if mailer := notify.NewSendGridMailer(cfg.SendGridAPIKey, from, logger); mailer != nil {
			return mailer
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY; order emails will be logged only")
	case "ses":
		if clients != nil && clients.SES != nil && cfg.SESFromEmail != "" {
			from := notify.Identity{Email: cfg.SESFromEmail, Name: cfg.BusinessName, ReplyTo: cfg.EmailReplyTo}
			return notify.NewSESMailer(clients.SES, from, cfg.SESConfigSet, logger)
		}
		logger.Warn("ses selected without AWS config or SES_FROM_EMAIL; order emails will be logged only")
	}
	return notify.NewLogMailer(logger)
}

// BuildOutboxHandler fans delivered events out to SQS (when configured) and
// the receipt mailer.
func BuildOutboxHandler(cfg *appconfig.Config, clients *AWSClients, receipts *notify.ReceiptService) events.DeliveryHandler {
	var fan events.FanOut
	if clients != nil && clients.SQS != nil && cfg.OrderEventsQueueURL != "" {
		fan = append(fan, events.NewSQSPublisher(clients.SQS, cfg.OrderEventsQueueURL))
	}
	if receipts != nil {
		fan = append(fan, receipts)
	}
	return fan
}

// BuildArchiver returns an S3 archiver, or nil when ARCHIVE_BUCKET is unset.
func BuildArchiver(cfg *appconfig.Config, clients *AWSClients, logger *logging.Logger) *orders.Archiver {
	if clients == nil || clients.S3 == nil || cfg.ArchiveBucket == "" {
		return nil
	}
	return orders.NewArchiver(clients.S3, cfg.ArchiveBucket, logger)
}

// BuildPaymentProvider wraps payments.NewProvider with the env-derived config.
func BuildPaymentProvider(cfg *appconfig.Config, logger *logging.Logger) (payments.Provider, error) {
	return payments.NewProvider(payments.ProviderConfig{
		Name:              cfg.PaymentProvider,
		StripeSecretKey:   cfg.StripeSecretKey,
		StripeBaseURL:     cfg.StripeBaseURL,
		AllowFakePayments: cfg.AllowFakePayments,
		Production:        cfg.IsProduction(),
	}, logger)
}

// BuildSubmissionLimiter needs Redis; without it submissions are unlimited.
func BuildSubmissionLimiter(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) orders.SubmissionLimiter {
	if redisClient == nil || cfg.SubmitVelocityLimit <= 0 {
		return nil
	}
	return payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
		MaxSubmissionsPerEmail: cfg.SubmitVelocityLimit,
		SubmissionWindow:       cfg.SubmitVelocityWindow,
		EnableSubmissionCheck:  true,
	}, logger)
}

// Gateways is the pair of backend calls the wizard makes.
type Gateways struct {
	Submitter intake.SubmissionGateway
	Confirmer intake.ConfirmationGateway
	Mode      string
}

// BuildGateways calls the in-process service unless BACKEND_BASE_URL points
// at a separate API, in which case the HTTP client is used.
func BuildGateways(cfg *appconfig.Config, service *orders.Service, logger *logging.Logger) Gateways {
	if service != nil && (cfg.BackendBaseURL == "" || cfg.BackendBaseURL == "local") {
		local := orders.NewLocalGateway(service)
		return Gateways{Submitter: local, Confirmer: local, Mode: "local"}
	}
	client := backendclient.New(cfg.BackendBaseURL, logger)
	return Gateways{Submitter: client, Confirmer: client, Mode: "http"}
}
