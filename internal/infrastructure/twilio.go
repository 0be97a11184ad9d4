package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"smartreply/internal/entities"
	"smartreply/internal/interfaces"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

var (
	ErrEmptyBody       = errors.New("message body is empty")
	ErrMissingFormData = errors.New("webhook payload missing required fields")
)

// TwilioClient sends WhatsApp messages through Twilio's messaging REST API.
type TwilioClient struct {
	accountSID     string
	authToken      string
	whatsappNumber string
	baseURL        string
	httpClient     *http.Client
}

func NewTwilioClient(accountSID, authToken, whatsappNumber string) *TwilioClient {
	return &TwilioClient{
		accountSID:     accountSID,
		authToken:      authToken,
		whatsappNumber: whatsappNumber,
		baseURL:        defaultTwilioBaseURL,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
	}
}

var _ interfaces.Messenger = (*TwilioClient)(nil)

// ParseInboundWhatsApp normalizes a form-encoded Twilio webhook body.
// From, Body and MessageSid are required.
func ParseInboundWhatsApp(form url.Values) (entities.InboundMessage, error) {
	msg := entities.InboundMessage{
		From:        form.Get("From"),
		Body:        form.Get("Body"),
		ExternalID:  form.Get("MessageSid"),
		DisplayName: form.Get("ProfileName"),
	}
	if msg.From == "" || msg.Body == "" || msg.ExternalID == "" {
		return entities.InboundMessage{}, ErrMissingFormData
	}
	return msg, nil
}

func (t *TwilioClient) SendMessage(ctx context.Context, to, body string) (map[string]any, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	params := url.Values{}
	params.Set("From", NormalizeWhatsAppAddress(t.whatsappNumber))
	params.Set("To", NormalizeWhatsAppAddress(to))
	params.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("twilio API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var data map[string]any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return data, nil
}

// NormalizeWhatsAppAddress strips invisible and control characters from the
// address and ensures the whatsapp: scheme prefix Twilio requires.
func NormalizeWhatsAppAddress(addr string) string {
	addr = stripInvisible(strings.TrimSpace(addr))
	if !strings.HasPrefix(addr, "whatsapp:") {
		addr = "whatsapp:" + addr
	}
	return addr
}

// stripInvisible drops control characters and format runes (zero-width and
// bidirectional overrides) that could smuggle a different address past review.
func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}
