// Package swish talks to the Swish commerce API over mutually authenticated
// TLS. Tenant credentials are decrypted by the caller and held only for the
// duration of a call.
package swish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/IsakPetersson/Orient/internal/domain"
)

const (
	baseURLTest = "https://mss.cpc.getswish.net/swish-cpcapi"
	baseURLProd = "https://cpc.getswish.net/swish-cpcapi"

	defaultTimeout = 15 * time.Second
)

// Credentials is a decrypted provider identity.
type Credentials struct {
	MerchantNumber string
	Mode           string // domain.ModeTest or domain.ModeProd
	P12            []byte
	Passphrase     string
}

// PaymentParams is the outbound payment request body.
type PaymentParams struct {
	PayeeAlias            string `json:"payeeAlias"`
	PayerAlias            string `json:"payerAlias"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Message               string `json:"message,omitempty"`
	PayeePaymentReference string `json:"payeePaymentReference"`
	CallbackURL           string `json:"callbackUrl"`
}

// PaymentResponse is the provider's acknowledgment of a created request.
type PaymentResponse struct {
	Location string // tracking URL, returned verbatim
	ID       string // last path segment of Location
}

// ProviderError is a structured failure returned by the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("swish api error (%d): %s", e.StatusCode, e.Message)
}

// TransportError is a connection or TLS failure reaching the provider.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("swish request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client issues payment requests. The zero value uses the fixed provider
// endpoints; tests override the base URLs and the HTTP client.
type Client struct {
	TestBaseURL string
	ProdBaseURL string
	Timeout     time.Duration

	// HTTPClient, when set, bypasses per-call mTLS transport construction.
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		TestBaseURL: baseURLTest,
		ProdBaseURL: baseURLProd,
		Timeout:     defaultTimeout,
	}
}

// CreatePaymentRequest PUTs a payment request under the caller-generated
// instruction id. A 201 yields the tracking location; any other status is
// parsed as the provider's error list.
func (c *Client) CreatePaymentRequest(ctx context.Context, creds Credentials, instructionID string, params PaymentParams) (*PaymentResponse, error) {
	httpClient, err := c.httpClient(creds)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("swish: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/paymentrequests/%s", c.baseURL(creds.Mode), instructionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("swish: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, parseProviderError(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "missing Location header"}
	}

	segments := strings.Split(location, "/")
	return &PaymentResponse{
		Location: location,
		ID:       segments[len(segments)-1],
	}, nil
}

func (c *Client) baseURL(mode string) string {
	if mode == domain.ModeProd {
		if c.ProdBaseURL != "" {
			return c.ProdBaseURL
		}
		return baseURLProd
	}
	if c.TestBaseURL != "" {
		return c.TestBaseURL
	}
	return baseURLTest
}

func (c *Client) httpClient(creds Credentials) (*http.Client, error) {
	if c.HTTPClient != nil {
		return c.HTTPClient, nil
	}
	tlsCfg, err := clientTLSConfig(creds)
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}, nil
}

// clientTLSConfig builds the mutual TLS identity from the tenant's PKCS#12
// bundle. The MSS test environment runs on a non-production certificate
// chain, so peer verification is relaxed in TEST mode only; PROD verifies
// strictly.
func clientTLSConfig(creds Credentials) (*tls.Config, error) {
	blocks, err := pkcs12.ToPEM(creds.P12, creds.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("swish: decode certificate bundle: %w", err)
	}

	var pemBytes []byte
	for _, b := range blocks {
		pemBytes = append(pemBytes, pem.EncodeToMemory(b)...)
	}

	cert, err := tls.X509KeyPair(pemBytes, pemBytes)
	if err != nil {
		return nil, fmt.Errorf("swish: load client identity: %w", err)
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: creds.Mode != domain.ModeProd,
	}, nil
}

type providerErrorEntry struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// parseProviderError flattens the provider's error list into one error. A
// body that is not the documented list shape is passed through raw.
func parseProviderError(resp *http.Response) *ProviderError {
	data, _ := io.ReadAll(resp.Body)

	var entries []providerErrorEntry
	if err := json.Unmarshal(data, &entries); err != nil || len(entries) == 0 {
		return &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.ErrorCode != "" && e.ErrorMessage != "":
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorMessage))
		case e.ErrorMessage != "":
			msgs = append(msgs, e.ErrorMessage)
		case e.ErrorCode != "":
			msgs = append(msgs, e.ErrorCode)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: strings.Join(msgs, "; ")}
}
