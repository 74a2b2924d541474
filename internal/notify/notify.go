package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	commonaws "kra-assist/internal/common/aws"
	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/dialogue"
)

// SNSNotifier publishes escalations to the support topic.
type SNSNotifier struct {
	api      commonaws.SNSAPI
	topicARN string
}

func NewSNSNotifier(api commonaws.SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{api: api, topicARN: topicARN}
}

func (n *SNSNotifier) NotifyEscalation(ctx context.Context, esc dialogue.Escalation) error {
	body, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("encode escalation: %w", err)
	}
	_, err = n.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("KRA assistant escalation"),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"reason":   {DataType: aws.String("String"), StringValue: aws.String(esc.Reason)},
			"language": {DataType: aws.String("String"), StringValue: aws.String(string(esc.Language))},
		},
	})
	if err != nil {
		return apperrors.NewNotificationSendFailedError("sns", err)
	}
	return nil
}

// NoopNotifier drops escalations. Used when SNS is disabled.
type NoopNotifier struct{}

func (NoopNotifier) NotifyEscalation(context.Context, dialogue.Escalation) error { return nil }

// SupportEmail is a message to the human support desk.
type SupportEmail struct {
	To       string
	UserID   string
	Query    string
	Language string
	Reason   string
}

// SESMailer sends support-desk emails.
type SESMailer struct {
	api       commonaws.SESAPI
	fromEmail string
	defaultTo string
}

func NewSESMailer(api commonaws.SESAPI, fromEmail, supportEmail string) *SESMailer {
	return &SESMailer{api: api, fromEmail: fromEmail, defaultTo: supportEmail}
}

// SendSupportEmail returns the SES message id.
func (m *SESMailer) SendSupportEmail(ctx context.Context, e SupportEmail) (string, error) {
	to := e.To
	if to == "" {
		to = m.defaultTo
	}
	if to == "" {
		return "", apperrors.NewValidationError("no recipient for support email")
	}

	out, err := m.api.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.fromEmail),
		Destination: &sestypes.Destination{ToAddresses: []string{to}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(supportSubject(e)), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(supportBody(e)), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return "", apperrors.NewNotificationSendFailedError("ses", err)
	}
	return aws.ToString(out.MessageId), nil
}

func supportSubject(e SupportEmail) string {
	if e.Reason == "" {
		return "Taxpayer query needs attention"
	}
	return fmt.Sprintf("Taxpayer query needs attention (%s)", e.Reason)
}

func supportBody(e SupportEmail) string {
	var b strings.Builder
	user := e.UserID
	if user == "" {
		user = "anonymous"
	}
	fmt.Fprintf(&b, "User: %s\n", user)
	if e.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", e.Language)
	}
	fmt.Fprintf(&b, "\n%s\n", e.Query)
	return b.String()
}
