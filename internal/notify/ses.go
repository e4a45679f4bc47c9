package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// SESAPI is the part of the SES v2 client the mailer calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends order emails through Amazon SES. Kind and order id travel
// as message tags, which a configuration set can route to event destinations.
type SESMailer struct {
	client    SESAPI
	from      Identity
	configSet string
	logger    *logging.Logger
}

// NewSESMailer returns nil when client is nil. configSet may be empty.
func NewSESMailer(client SESAPI, from Identity, configSet string, logger *logging.Logger) *SESMailer {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESMailer{client: client, from: from.withDefaults(), configSet: configSet, logger: logger}
}

func (s *SESMailer) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return errors.New("notify: ses client not configured")
	}
	out, err := s.client.SendEmail(ctx, s.build(msg))
	if err != nil {
		s.logger.Error("ses send failed", "error", err, "kind", msg.Kind, "order_id", msg.OrderID)
		return fmt.Errorf("notify: ses send: %w", err)
	}
	s.logger.Info("order email sent via ses", "kind", msg.Kind, "order_id", msg.OrderID, "message_id", aws.ToString(out.MessageId))
	return nil
}

func (s *SESMailer) build(msg Message) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.Text != "" {
		body.Text = utf8Content(msg.Text)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.From()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if s.from.ReplyTo != "" {
		in.ReplyToAddresses = []string{s.from.ReplyTo}
	}
	if s.configSet != "" {
		in.ConfigurationSetName = aws.String(s.configSet)
	}
	if msg.Kind != "" {
		in.EmailTags = append(in.EmailTags, messageTag("kind", string(msg.Kind)))
	}
	if msg.OrderID != "" {
		in.EmailTags = append(in.EmailTags, messageTag("order_id", msg.OrderID))
	}
	return in
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// messageTag keeps only the characters SES accepts in tag values.
func messageTag(name, value string) types.MessageTag {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, value)
	return types.MessageTag{Name: aws.String(name), Value: aws.String(clean)}
}

var _ Mailer = (*SESMailer)(nil)
