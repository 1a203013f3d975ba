package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/districtsmiles/appointment-booking/pkg/logging"
)

// ErrGatewayUnavailable is returned when the gateway cannot be reached
// or answers with a server error.  Callers must treat it as "status
// unknown", never as a payment failure.
var ErrGatewayUnavailable = errors.New("gateway: paymongo unavailable")

// ErrSessionNotFound is returned when the gateway does not know the
// requested checkout session.
var ErrSessionNotFound = errors.New("gateway: checkout session not found")

// Verdict is the gateway's answer about a checkout session.  Only Paid
// confirms an appointment and only Failed releases its slot; Pending
// changes nothing.
type Verdict string

const (
	VerdictPaid    Verdict = "paid"
	VerdictFailed  Verdict = "failed"
	VerdictPending Verdict = "pending"
)

// CheckoutParams describe the hosted payment page to open for one
// appointment.  AmountCents comes from the service catalog, never from
// the client.
type CheckoutParams struct {
	AppointmentID uint64
	Description   string
	AmountCents   uint32
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the gateway-side session opened for an
// appointment.  ID is persisted on the appointment so that redirect
// and webhook deliveries can be correlated without trusting
// client-held state.
type CheckoutSession struct {
	ID          string
	CheckoutURL string
	ReferenceNo string
}

// PayMongoService talks to the PayMongo checkout sessions API.
type PayMongoService struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewPayMongoService(secretKey string, logger *logging.Logger) *PayMongoService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PayMongoService{
		secretKey:  secretKey,
		baseURL:    "https://api.paymongo.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the PayMongo API host (e.g. a test server).
func (s *PayMongoService) WithBaseURL(baseURL string) *PayMongoService {
	if baseURL == "" {
		return s
	}
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

func (s *PayMongoService) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(s.secretKey+":"))
}

// CreateCheckoutSession opens a hosted payment page for an
// appointment.  The appointment id travels in the session metadata so
// webhook deliveries can be mapped back without a lookup table.
func (s *PayMongoService) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	reference := uuid.NewString()
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"line_items": []map[string]any{
					{
						"name":     params.Description,
						"quantity": 1,
						"amount":   params.AmountCents,
						"currency": "PHP",
					},
				},
				"payment_method_types": []string{"gcash", "card", "paymaya"},
				"reference_number":     reference,
				"success_url":          params.SuccessURL,
				"cancel_url":           params.CancelURL,
				"metadata": map[string]string{
					"appointment_id": fmt.Sprintf("%d", params.AppointmentID),
				},
			},
		},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: paymongo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/checkout_sessions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("gateway: paymongo request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("paymongo create session failed", "error", err)
		return nil, ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, ErrGatewayUnavailable
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway: paymongo api status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				CheckoutURL string `json:"checkout_url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway: paymongo decode: %w", err)
	}
	if parsed.Data.Attributes.CheckoutURL == "" {
		return nil, fmt.Errorf("gateway: paymongo response missing checkout_url")
	}

	return &CheckoutSession{
		ID:          parsed.Data.ID,
		CheckoutURL: parsed.Data.Attributes.CheckoutURL,
		ReferenceNo: reference,
	}, nil
}

// SessionStatus is the verified state of a checkout session as the
// gateway reports it, with the transaction reference of the settled
// payment when one exists.
type SessionStatus struct {
	Verdict        Verdict
	TransactionRef string
	Method         string
}

// GetSessionStatus queries the gateway for the authoritative state of
// a checkout session.  Redirect arrivals and webhook payloads are both
// unverified inputs; this call is the only source a confirmation may
// rest on.
func (s *PayMongoService) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/checkout_sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: paymongo request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("paymongo get session failed", "session_id", sessionID, "error", err)
		return nil, ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, ErrGatewayUnavailable
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway: paymongo api status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data struct {
			Attributes struct {
				PaymentIntent struct {
					Attributes struct {
						Status string `json:"status"`
					} `json:"attributes"`
				} `json:"payment_intent"`
				Payments []struct {
					ID         string `json:"id"`
					Attributes struct {
						Status string `json:"status"`
						Source struct {
							Type string `json:"type"`
						} `json:"source"`
					} `json:"attributes"`
				} `json:"payments"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway: paymongo decode: %w", err)
	}

	for _, p := range parsed.Data.Attributes.Payments {
		if p.Attributes.Status == "paid" {
			return &SessionStatus{
				Verdict:        VerdictPaid,
				TransactionRef: p.ID,
				Method:         p.Attributes.Source.Type,
			}, nil
		}
	}
	switch parsed.Data.Attributes.PaymentIntent.Attributes.Status {
	case "cancelled":
		return &SessionStatus{Verdict: VerdictFailed}, nil
	default:
		return &SessionStatus{Verdict: VerdictPending}, nil
	}
}
