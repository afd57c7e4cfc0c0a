package main

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ChatClient encaminha mensagens ao assistente de conversa
type ChatClient interface {
	Ask(ctx context.Context, message string) (string, error)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// RestyChatClient implementa ChatClient via HTTP
type RestyChatClient struct {
	client  *resty.Client
	url     string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewChatClient cria uma nova instância de RestyChatClient
func NewChatClient(cfg ChatConfig, logger *zap.Logger) *RestyChatClient {
	return &RestyChatClient{
		client:  resty.New().SetTimeout(cfg.Timeout),
		url:     cfg.URL,
		breaker: newBreaker("chat"),
		logger:  logger,
	}
}

func (c *RestyChatClient) Ask(ctx context.Context, message string) (string, error) {
	reply, err := executeWithBreaker(c.breaker, func() (string, error) {
		var out chatResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(chatRequest{Message: message}).
			SetResult(&out).
			Post(c.url)
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", &upstreamStatusError{Service: "chat backend", StatusCode: resp.StatusCode(), Message: resp.String()}
		}
		return out.Reply, nil
	})
	if err != nil {
		logError(ctx, c.logger, "❌ [CHAT] request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}

	return reply, nil
}
