package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/slack-go/slack"
)

// Notifier surfaces scheduler failures that exhausted their retry budget.
// Escalation is observability, never control flow: a failed notification is
// logged by the caller and nothing else changes.
type Notifier interface {
	EscalateSendFailure(day string, attempts int, lastErr error) error
}

// SlackNotifier posts escalations to a channel, mirroring the daily report
// recipients' expectations when email delivery itself is what broke.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
	}
}

func (n *SlackNotifier) EscalateSendFailure(day string, attempts int, lastErr error) error {
	attachment := slack.Attachment{
		Color: "#ff0000",
		Title: "Daily report delivery failed",
		Text:  fmt.Sprintf("Gave up sending the report for %s after %d attempts.", day, attempts),
		Fields: []slack.AttachmentField{
			{
				Title: "Day",
				Value: day,
				Short: true,
			},
			{
				Title: "Attempts",
				Value: fmt.Sprintf("%d", attempts),
				Short: true,
			},
			{
				Title: "Last error",
				Value: lastErr.Error(),
			},
		},
		Footer: "image-emailer scheduler",
		Ts:     json.Number(strconv.FormatInt(time.Now().Unix(), 10)),
	}

	_, _, err := n.client.PostMessage(
		n.channel,
		slack.MsgOptionAttachments(attachment),
	)
	return err
}

// NopNotifier drops escalations; used when Slack is not configured.
type NopNotifier struct{}

func (NopNotifier) EscalateSendFailure(string, int, error) error { return nil }
