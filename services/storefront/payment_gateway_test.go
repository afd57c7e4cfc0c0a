package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload gera o header Stripe-Signature para o payload
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedEventPayload(email string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"customer_email": %q,
				"amount_total": 2500,
				"shipping_details": {
					"address": {
						"line1": "Jalan Bukit Bintang 1",
						"city": "Kuala Lumpur",
						"state": "",
						"postal_code": "55100",
						"country": "MY"
					}
				}
			}
		}
	}`, email))
}

func newTestStripeGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	return newLoggedStripeGateway(t, zap.NewNop(), handler)
}

func newLoggedStripeGateway(t *testing.T, logger *zap.Logger, handler http.HandlerFunc) *StripeGateway {
	t.Helper()

	cfg := StripeConfig{
		SecretKey:       "sk_test_123",
		WebhookSecret:   testWebhookSecret,
		Currency:        "myr",
		ShippingCountry: "MY",
	}

	if handler == nil {
		return NewStripeGateway(cfg, "http://shop.local/", nil, logger)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     newStripeLogger(logger),
	})
	return NewStripeGateway(cfg, "http://shop.local/", &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	}, logger)
}

func testCheckoutRequest() CheckoutSessionRequest {
	return CheckoutSessionRequest{
		Email: "buyer@example.com",
		Lines: []CheckoutLine{{ProductID: "p1", Name: "Jersey", UnitAmount: 8900, Quantity: 1, Option: NewVariationOption("M", "")}},
	}
}

func TestStripeGateway_ConstructEvent(t *testing.T) {
	gateway := newTestStripeGateway(t, nil)
	payload := completedEventPayload("buyer@example.com")

	event, err := gateway.ConstructEvent(payload, signPayload(payload, testWebhookSecret))

	require.NoError(t, err)
	assert.Equal(t, eventCheckoutSessionCompleted, event.Type)
	require.NotNil(t, event.Session)
	assert.Equal(t, "cs_test_1", event.Session.ID)
	assert.Equal(t, "buyer@example.com", event.Session.CustomerEmail)
	assert.Equal(t, int64(2500), event.Session.AmountTotal)
	assert.Equal(t, "Jalan Bukit Bintang 1\nKuala Lumpur\n55100\nMY", event.Session.ShippingAddress)
}

func TestStripeGateway_ConstructEvent_InvalidSignature(t *testing.T) {
	gateway := newTestStripeGateway(t, nil)
	payload := completedEventPayload("buyer@example.com")

	_, err := gateway.ConstructEvent(payload, signPayload(payload, "whsec_other"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = gateway.ConstructEvent(payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeGateway_ConstructEvent_OtherType(t *testing.T) {
	gateway := newTestStripeGateway(t, nil)
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`)

	event, err := gateway.ConstructEvent(payload, signPayload(payload, testWebhookSecret))

	require.NoError(t, err)
	assert.Equal(t, "payment_intent.created", event.Type)
	assert.Nil(t, event.Session)
}

func TestStripeGateway_CreateCheckoutSession(t *testing.T) {
	var form map[string][]string
	gateway := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	})

	url, err := gateway.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Email: "buyer@example.com",
		Lines: []CheckoutLine{
			{ProductID: "p1", Name: "Jersey", UnitAmount: 8900, Quantity: 2, Option: NewVariationOption("M", "")},
			{ProductID: "p2", Name: "Cap", UnitAmount: 1500, Quantity: 1, Option: NewVariationOption("", "")},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", url)

	get := func(key string) string {
		if v := form[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	assert.Equal(t, "payment", get("mode"))
	assert.Equal(t, "buyer@example.com", get("customer_email"))
	assert.Equal(t, "MY", get("shipping_address_collection[allowed_countries][0]"))
	assert.Equal(t, "http://shop.local/payment_success", get("success_url"))
	assert.Equal(t, "http://shop.local/cart", get("cancel_url"))
	assert.Equal(t, "myr", get("line_items[0][price_data][currency]"))
	assert.Equal(t, "8900", get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "2", get("line_items[0][quantity]"))
	assert.Equal(t, "p1", get("line_items[0][price_data][product_data][metadata][productId]"))
	assert.Equal(t, "M", get("line_items[0][price_data][product_data][metadata][size]"))
	assert.Empty(t, get("line_items[0][price_data][product_data][metadata][color]"))
	assert.Empty(t, get("line_items[1][price_data][product_data][metadata][size]"))
}

func lineItemJSON(id, productID, name, size, color string, quantity, unitAmount int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"object": "item",
		"quantity": %d,
		"price": {
			"id": "price_%s",
			"object": "price",
			"unit_amount": %d,
			"product": {"id": "prod_%s", "object": "product", "name": %q, "metadata": {"productId": %q, "size": %q, "color": %q}}
		}
	}`, id, quantity, id, unitAmount, id, name, productID, size, color)
}

func TestStripeGateway_GetCheckoutLineItems(t *testing.T) {
	// Arrange
	var pages []string
	gateway := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1/line_items", r.URL.Path)
		assert.Equal(t, "data.price.product", r.URL.Query().Get("expand[0]"))

		after := r.URL.Query().Get("starting_after")
		pages = append(pages, after)

		w.Header().Set("Content-Type", "application/json")
		switch after {
		case "":
			fmt.Fprintf(w, `{"object":"list","url":"/v1/checkout/sessions/cs_test_1/line_items","has_more":true,"data":[%s]}`,
				lineItemJSON("li_1", "p1", "Jersey", "M", "", 2, 1000))
		case "li_1":
			fmt.Fprintf(w, `{"object":"list","url":"/v1/checkout/sessions/cs_test_1/line_items","has_more":false,"data":[%s]}`,
				lineItemJSON("li_2", "p2", "Cap", "", "Red", 1, 500))
		default:
			t.Errorf("unexpected cursor %q", after)
		}
	})

	// Act
	lines, err := gateway.GetCheckoutLineItems(context.Background(), "cs_test_1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"", "li_1"}, pages)
	require.Len(t, lines, 2)
	assert.Equal(t, PurchasedLine{ProductID: "p1", ProductName: "Jersey", Option: NewVariationOption("M", ""), Quantity: 2, UnitAmount: 1000}, lines[0])
	assert.Equal(t, PurchasedLine{ProductID: "p2", ProductName: "Cap", Option: NewVariationOption("", "Red"), Quantity: 1, UnitAmount: 500}, lines[1])
}

func TestStripeGateway_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	gateway := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid quantity"}}`))
	})

	for i := 0; i < 6; i++ {
		_, err := gateway.CreateCheckoutSession(context.Background(), testCheckoutRequest())

		var stripeErr *stripe.Error
		require.ErrorAs(t, err, &stripeErr)
		assert.Equal(t, http.StatusBadRequest, stripeErr.HTTPStatusCode)
	}

	assert.Equal(t, int32(6), calls.Load())
}

func TestStripeGateway_CheckoutOutageDoesNotBlockLineItems(t *testing.T) {
	var checkoutCalls, listCalls atomic.Int32
	gateway := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			checkoutCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
			return
		}
		listCalls.Add(1)
		_, _ = w.Write([]byte(`{"object":"list","has_more":false,"data":[]}`))
	})

	for i := 0; i < 5; i++ {
		_, err := gateway.CreateCheckoutSession(context.Background(), testCheckoutRequest())
		require.Error(t, err)
	}

	_, err := gateway.CreateCheckoutSession(context.Background(), testCheckoutRequest())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), checkoutCalls.Load())

	_, err = gateway.GetCheckoutLineItems(context.Background(), "cs_test_1")
	assert.NoError(t, err)
	assert.Equal(t, int32(1), listCalls.Load())
}

func TestStripeGateway_LogsThroughZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gateway := newLoggedStripeGateway(t, zap.New(core), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid quantity"}}`))
	})

	_, err := gateway.CreateCheckoutSession(context.Background(), testCheckoutRequest())

	require.Error(t, err)
	errorLogs := logs.FilterLevelExact(zap.ErrorLevel).FilterLoggerName("stripe").All()
	require.NotEmpty(t, errorLogs)
	assert.Contains(t, errorLogs[0].Message, "Request error from Stripe")
}

func TestFlattenAddress(t *testing.T) {
	assert.Equal(t, "", flattenAddress(nil))
	assert.Equal(t, "A\nB", flattenAddress(&sessionAddress{Line1: "A", Country: "B"}))
}
