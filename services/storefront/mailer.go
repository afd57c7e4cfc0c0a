package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Email é uma mensagem HTML pronta para envio
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer envia emails transacionais
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridError struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// SendGridMailer implementa Mailer com a API v3 do SendGrid
type SendGridMailer struct {
	client  *resty.Client
	from    sendGridAddress
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewSendGridMailer cria uma nova instância de SendGridMailer
func NewSendGridMailer(cfg SendGridConfig, logger *zap.Logger) *SendGridMailer {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &SendGridMailer{
		client:  client,
		from:    sendGridAddress{Email: cfg.FromEmail, Name: cfg.FromName},
		breaker: newBreaker("sendgrid"),
		logger:  logger,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, email Email) error {
	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: email.To}}}},
		From:             m.from,
		Subject:          email.Subject,
		Content:          []sendGridContent{{Type: "text/html", Value: email.HTML}},
	}

	_, err := executeWithBreaker(m.breaker, func() (*resty.Response, error) {
		var apiErr sendGridError
		resp, err := m.client.R().
			SetContext(ctx).
			SetBody(body).
			SetError(&apiErr).
			Post("/v3/mail/send")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK {
			msg := resp.Status()
			if len(apiErr.Errors) > 0 {
				msg = apiErr.Errors[0].Message
			}
			return nil, &upstreamStatusError{Service: "sendgrid", StatusCode: resp.StatusCode(), Message: msg}
		}
		return resp, nil
	})
	if err != nil {
		logError(ctx, m.logger, "❌ [EMAIL] delivery failed", zap.String("subject", email.Subject), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}

	logInfo(ctx, m.logger, "📧 [EMAIL] sent", zap.String("subject", email.Subject))
	return nil
}
