package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v76"
)

// upstreamStatusError é a resposta HTTP de erro de uma dependência externa
type upstreamStatusError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Message)
}

// isClientError identifica respostas 4xx: a dependência está de pé, o pedido é que foi recusado
func isClientError(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < http.StatusInternalServerError
	}

	var upstreamErr *upstreamStatusError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.StatusCode < http.StatusInternalServerError
	}

	return false
}

// newBreaker abre o circuito após 5 falhas consecutivas e tenta novamente depois de 30s.
// Erros 4xx não contam como falha.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
	})
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})

	if err != nil {
		return *new(T), err
	}

	return res.(T), nil
}
