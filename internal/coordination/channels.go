package coordination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"disruptline/internal/config"
	"disruptline/internal/domain"
)

// Outreach contact methods.
const (
	MethodWhatsApp = "whatsapp"
	MethodSMS      = "sms"
	MethodEmail    = "email"
	MethodPhone    = "phone"
	MethodAPI      = "api"
)

var methodPrefix = map[string]string{
	MethodWhatsApp: "wa",
	MethodSMS:      "sms",
	MethodEmail:    "email",
	MethodPhone:    "phone",
	MethodAPI:      "api",
}

const defaultChannelTimeout = 10 * time.Second

// SendResult is a channel's acknowledgement of one message.
type SendResult struct {
	Status    string
	MessageID string
}

// Sender delivers a message over one outreach channel. An unknown
// recipient is not an error; only transport failures are.
type Sender interface {
	Send(ctx context.Context, contact domain.Contact, message, caseID string) (SendResult, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, contact domain.Contact, message, caseID string) (SendResult, error)

func (f SenderFunc) Send(ctx context.Context, contact domain.Contact, message, caseID string) (SendResult, error) {
	return f(ctx, contact, message, caseID)
}

func messageID(method, caseID string, at time.Time) string {
	prefix := methodPrefix[method]
	if prefix == "" {
		prefix = method
	}
	return fmt.Sprintf("%s_%s_%d", prefix, caseID, at.UnixNano())
}

// logSender records the message in the log and reports it as sent. It is
// the default for channels without a delivery webhook.
type logSender struct {
	method string
	logger *zap.Logger
	now    func() time.Time
}

func (s logSender) Send(_ context.Context, contact domain.Contact, message, caseID string) (SendResult, error) {
	preview := message
	if r := []rune(preview); len(r) > 50 {
		preview = string(r[:50]) + "..."
	}
	s.logger.Info("outreach message",
		zap.String("channel", s.method),
		zap.String("case_id", caseID),
		zap.String("recipient", contact.Name),
		zap.String("preview", preview),
	)
	return SendResult{Status: domain.OutreachSent, MessageID: messageID(s.method, caseID, s.now())}, nil
}

type webhookPayload struct {
	CaseID  string         `json:"case_id"`
	Channel string         `json:"channel"`
	Contact domain.Contact `json:"contact"`
	Message string         `json:"message"`
}

// httpSender posts each message as JSON to a delivery gateway.
type httpSender struct {
	method string
	url    string
	client *http.Client
	now    func() time.Time
}

func (s httpSender) Send(ctx context.Context, contact domain.Contact, message, caseID string) (SendResult, error) {
	data, err := json.Marshal(webhookPayload{CaseID: caseID, Channel: s.method, Contact: contact, Message: message})
	if err != nil {
		return SendResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return SendResult{}, domain.ExternalCallError{Collaborator: s.method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Disruptline-Case", caseID)
	res, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, domain.ExternalCallError{Collaborator: s.method, Err: err}
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return SendResult{}, domain.ExternalCallError{
			Collaborator: s.method,
			Err:          fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	var ack struct {
		MessageID string `json:"message_id"`
	}
	if json.Unmarshal(body, &ack) != nil || ack.MessageID == "" {
		ack.MessageID = messageID(s.method, caseID, s.now())
	}
	return SendResult{Status: domain.OutreachSent, MessageID: ack.MessageID}, nil
}

// NewSenders builds one sender per enabled channel. Disabled channels are
// left out, so outreach over them is skipped.
func NewSenders(channels map[string]config.ChannelConfig, logger *zap.Logger, now func() time.Time) map[string]Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	client := &http.Client{
		Timeout:   defaultChannelTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	senders := make(map[string]Sender, len(methodPrefix))
	for method := range methodPrefix {
		cfg := channels[method]
		if !cfg.IsEnabled() {
			continue
		}
		if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
			senders[method] = httpSender{method: method, url: url, client: client, now: now}
			continue
		}
		senders[method] = logSender{method: method, logger: logger, now: now}
	}
	return senders
}
