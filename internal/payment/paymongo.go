package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://api.paymongo.com/v1"

// maxErrorBody caps how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// PayMongoClient implements Gateway over the PayMongo REST API.
type PayMongoClient struct {
	baseURL    *url.URL
	secretKey  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewPayMongoClient validates baseURL and builds a client with the given timeout.
func NewPayMongoClient(baseURL, secretKey string, timeout time.Duration, logger zerolog.Logger) (*PayMongoClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse payment gateway url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("payment gateway url must be absolute")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PayMongoClient{
		baseURL:    parsed,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "paymongo").Logger(),
	}, nil
}

type checkoutAttributes struct {
	SendEmailReceipt    bool              `json:"send_email_receipt"`
	ShowDescription     bool              `json:"show_description"`
	ShowLineItems       bool              `json:"show_line_items"`
	LineItems           []LineItem        `json:"line_items"`
	PaymentMethodTypes  []string          `json:"payment_method_types"`
	Description         string            `json:"description"`
	StatementDescriptor string            `json:"statement_descriptor"`
	ReferenceNumber     string            `json:"reference_number,omitempty"`
	SuccessURL          string            `json:"success_url,omitempty"`
	CancelURL           string            `json:"cancel_url,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Billing             *Billing          `json:"billing,omitempty"`
}

type requestEnvelope struct {
	Data struct {
		Attributes any `json:"attributes"`
	} `json:"data"`
}

type sessionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			CheckoutURL   string            `json:"checkout_url"`
			Status        string            `json:"status"`
			Metadata      map[string]string `json:"metadata"`
			PaymentIntent *struct {
				ID string `json:"id"`
			} `json:"payment_intent"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreateCheckoutSession creates a hosted checkout page.
func (c *PayMongoClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error) {
	description := params.Description
	if description == "" {
		description = "Tile Depot Order"
	}

	var body requestEnvelope
	body.Data.Attributes = checkoutAttributes{
		SendEmailReceipt:    true,
		ShowDescription:     true,
		ShowLineItems:       true,
		LineItems:           params.LineItems,
		PaymentMethodTypes:  params.PaymentMethodTypes,
		Description:         description,
		StatementDescriptor: "TILE DEPOT",
		ReferenceNumber:     params.ReferenceNumber,
		SuccessURL:          params.SuccessURL,
		CancelURL:           params.CancelURL,
		Metadata:            params.Metadata,
		Billing:             params.Billing,
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "checkout_sessions", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("checkout_session_id", resp.Data.ID).
		Int("line_items", len(params.LineItems)).
		Msg("checkout session created")

	return toSession(resp), nil
}

// GetCheckoutSession retrieves a checkout session by id.
func (c *PayMongoClient) GetCheckoutSession(ctx context.Context, id string) (*Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, path.Join("checkout_sessions", url.PathEscape(id)), nil, &resp); err != nil {
		return nil, err
	}
	return toSession(resp), nil
}

type intentAttributes struct {
	Amount               int64             `json:"amount"`
	PaymentMethodAllowed []string          `json:"payment_method_allowed"`
	PaymentMethodOptions map[string]any    `json:"payment_method_options,omitempty"`
	Currency             string            `json:"currency"`
	CaptureType          string            `json:"capture_type"`
	Description          string            `json:"description"`
	StatementDescriptor  string            `json:"statement_descriptor"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

type intentResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			ClientKey string            `json:"client_key"`
			Status    string            `json:"status"`
			Amount    int64             `json:"amount"`
			Metadata  map[string]string `json:"metadata"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreatePaymentIntent creates an automatically captured payment intent.
func (c *PayMongoClient) CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	description := params.Description
	if description == "" {
		description = "Tile Depot Transaction"
	}
	allowed := params.PaymentMethodTypes
	if len(allowed) == 0 {
		allowed = []string{"gcash", "paymaya", "card"}
	}

	var body requestEnvelope
	body.Data.Attributes = intentAttributes{
		Amount:               params.Amount,
		PaymentMethodAllowed: allowed,
		PaymentMethodOptions: map[string]any{
			"card": map[string]string{"request_three_d_secure": "any"},
		},
		Currency:            Currency,
		CaptureType:         "automatic",
		Description:         description,
		StatementDescriptor: "TILE DEPOT",
		Metadata:            params.Metadata,
	}

	var resp intentResponse
	if err := c.do(ctx, http.MethodPost, "payment_intents", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("payment_intent_id", resp.Data.ID).
		Int64("amount", params.Amount).
		Msg("payment intent created")

	return toIntent(resp), nil
}

// GetPaymentIntent retrieves a payment intent by id.
func (c *PayMongoClient) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	var resp intentResponse
	if err := c.do(ctx, http.MethodGet, path.Join("payment_intents", url.PathEscape(id)), nil, &resp); err != nil {
		return nil, err
	}
	return toIntent(resp), nil
}

func toIntent(resp intentResponse) *Intent {
	return &Intent{
		ID:        resp.Data.ID,
		ClientKey: resp.Data.Attributes.ClientKey,
		Status:    resp.Data.Attributes.Status,
		Amount:    resp.Data.Attributes.Amount,
		Metadata:  resp.Data.Attributes.Metadata,
	}
}

func toSession(resp sessionResponse) *Session {
	s := &Session{
		ID:          resp.Data.ID,
		CheckoutURL: resp.Data.Attributes.CheckoutURL,
		Status:      resp.Data.Attributes.Status,
		Metadata:    resp.Data.Attributes.Metadata,
	}
	if pi := resp.Data.Attributes.PaymentIntent; pi != nil {
		s.PaymentIntentID = pi.ID
	}
	return s
}

func (c *PayMongoClient) do(ctx context.Context, method, resource string, in, out any) error {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, resource)

	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("resource", resource).Msg("payment gateway request failed")
		return fmt.Errorf("payment gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("resource", resource).
			Str("body", string(body)).
			Msg("payment gateway returned an error")
		return &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
