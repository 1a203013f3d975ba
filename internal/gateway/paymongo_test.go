package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSession(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout_sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"cs_test_123","attributes":{"checkout_url":"https://checkout.paymongo.com/cs_test_123"}}}`))
	}))
	defer srv.Close()

	svc := NewPayMongoService("sk_test_abc", nil).WithBaseURL(srv.URL)
	session, err := svc.CreateCheckoutSession(context.Background(), CheckoutParams{
		AppointmentID: 42,
		Description:   "Tooth Extraction",
		AmountCents:   250000,
		SuccessURL:    "https://clinic.example/payments/success",
		CancelURL:     "https://clinic.example/payments/cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", session.ID)
	assert.Equal(t, "https://checkout.paymongo.com/cs_test_123", session.CheckoutURL)
	assert.NotEmpty(t, session.ReferenceNo)

	// Basic auth carries the secret key with an empty password.
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("sk_test_abc:"))
	assert.Equal(t, wantAuth, gotAuth)

	// The appointment id must travel in the session metadata so webhook
	// deliveries can be correlated without client-held state.
	attrs := gotBody["data"].(map[string]any)["attributes"].(map[string]any)
	meta := attrs["metadata"].(map[string]any)
	assert.Equal(t, "42", meta["appointment_id"])
}

func TestGetSessionStatus_Paid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/cs_test_123"))
		_, _ = w.Write([]byte(`{"data":{"attributes":{
			"payment_intent":{"attributes":{"status":"succeeded"}},
			"payments":[{"id":"pay_xyz","attributes":{"status":"paid","source":{"type":"gcash"}}}]
		}}}`))
	}))
	defer srv.Close()

	svc := NewPayMongoService("sk_test_abc", nil).WithBaseURL(srv.URL)
	status, err := svc.GetSessionStatus(context.Background(), "cs_test_123")
	require.NoError(t, err)
	assert.Equal(t, VerdictPaid, status.Verdict)
	assert.Equal(t, "pay_xyz", status.TransactionRef)
	assert.Equal(t, "gcash", status.Method)
}

func TestGetSessionStatus_FailedAndPending(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		verdict Verdict
	}{
		{
			name:    "cancelled intent is a failure",
			body:    `{"data":{"attributes":{"payment_intent":{"attributes":{"status":"cancelled"}},"payments":[]}}}`,
			verdict: VerdictFailed,
		},
		{
			name:    "awaiting payment stays pending",
			body:    `{"data":{"attributes":{"payment_intent":{"attributes":{"status":"awaiting_payment_method"}},"payments":[]}}}`,
			verdict: VerdictPending,
		},
		{
			name:    "unpaid payment attempt stays pending",
			body:    `{"data":{"attributes":{"payment_intent":{"attributes":{"status":"processing"}},"payments":[{"id":"pay_1","attributes":{"status":"failed","source":{"type":"card"}}}]}}}`,
			verdict: VerdictPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			svc := NewPayMongoService("sk_test_abc", nil).WithBaseURL(srv.URL)
			status, err := svc.GetSessionStatus(context.Background(), "cs_test_123")
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, status.Verdict)
		})
	}
}

func TestGetSessionStatus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewPayMongoService("sk_test_abc", nil).WithBaseURL(srv.URL)
	_, err := svc.GetSessionStatus(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSessionStatus_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewPayMongoService("sk_test_abc", nil).WithBaseURL(srv.URL)
	_, err := svc.GetSessionStatus(context.Background(), "cs_test_123")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
