package alerts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	awsclient "portfolio-sync/internal/common/aws"
	"portfolio-sync/internal/common/config"
	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
)

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// LogNotifier writes toasts to the structured log.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.With(map[string]interface{}{"component": "alerts.log"})}
}

func (n *LogNotifier) Notify(ctx context.Context, toast Toast) error {
	n.logger.Info(toast.Title, map[string]interface{}{
		"description":    toast.Description,
		"durationMs":     toast.Duration.Milliseconds(),
		"notificationId": toast.NotificationID,
	})
	return nil
}

// SNSNotifier publishes toasts to a topic.
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
}

func NewSNSNotifier(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, toast Toast) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(toast.Title),
		Message:  aws.String(toast.Description),
	}
	if toast.NotificationID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"notification_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(toast.NotificationID),
			},
		}
	}
	if _, err := n.client.Publish(ctx, input); err != nil {
		return apperrors.NewAlertSendFailedError("sns", err)
	}
	return nil
}

// SESNotifier emails toasts.
type SESNotifier struct {
	client SESAPI
	from   string
	to     []string
}

func NewSESNotifier(client SESAPI, from string, to []string) *SESNotifier {
	return &SESNotifier{client: client, from: from, to: append([]string(nil), to...)}
}

func (n *SESNotifier) Notify(ctx context.Context, toast Toast) error {
	if len(n.to) == 0 {
		return nil
	}
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: n.to,
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(toast.Title)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(toast.Description)},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return apperrors.NewAlertSendFailedError("ses", err)
	}
	return nil
}

// NewFromConfig assembles the configured notifiers. With nothing enabled it
// falls back to the log.
func NewFromConfig(ctx context.Context, cfg config.AlertsConfig, log logger.Logger) (Notifier, error) {
	var out Multi
	if cfg.Log {
		out = append(out, NewLogNotifier(log))
	}
	if cfg.SNS.Enabled {
		client, err := awsclient.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns notifier: %w", err)
		}
		out = append(out, NewSNSNotifier(client, cfg.SNS.TopicARN))
	}
	if cfg.SES.Enabled {
		client, err := awsclient.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses notifier: %w", err)
		}
		out = append(out, NewSESNotifier(client, cfg.SES.FromEmail, cfg.SES.ToEmails))
	}
	if len(out) == 0 {
		return NewLogNotifier(log), nil
	}
	return out, nil
}
