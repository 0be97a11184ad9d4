package infrastructure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	"golang.org/x/sync/errgroup"

	"smartreply/internal/entities"
	"smartreply/internal/interfaces"
)

const (
	defaultGmailBaseURL = "https://gmail.googleapis.com"
	defaultTokenURL     = "https://oauth2.googleapis.com/token"

	// Bounds on the unread fetch: list at most 10 ids, fetch bodies for 5.
	maxUnreadList  = 10
	maxUnreadFetch = 5

	// MaxReplyLength caps outbound reply bodies.
	MaxReplyLength = 50000
)

var (
	ErrMissingThreadID = errors.New("thread id is required")
	ErrEmptyReply      = errors.New("reply text is required")
	ErrReplyTooLong    = fmt.Errorf("reply text exceeds maximum length of %d characters", MaxReplyLength)
)

// GmailClient talks to the Gmail REST API. Access tokens are exchanged fresh
// for every operation; nothing is cached.
type GmailClient struct {
	clientID     string
	clientSecret string
	refreshToken string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
}

func NewGmailClient(clientID, clientSecret, refreshToken string) *GmailClient {
	return &GmailClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		baseURL:      defaultGmailBaseURL,
		tokenURL:     defaultTokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

var _ interfaces.MailClient = (*GmailClient)(nil)

// RefreshAccessToken exchanges the long-lived refresh token for a bearer token.
func (g *GmailClient) RefreshAccessToken(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("client_id", g.clientID)
	params.Set("client_secret", g.clientSecret)
	params.Set("refresh_token", g.refreshToken)
	params.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("token endpoint returned no access token")
	}
	return tokenResp.AccessToken, nil
}

type gmailMessage struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// FetchUnread lists unread message ids and fetches each message's metadata
// and snippet individually. The per-message fetches run concurrently but the
// page bounds cap the fan-out.
func (g *GmailClient) FetchUnread(ctx context.Context, accessToken string) ([]entities.InboundEmail, error) {
	listURL := fmt.Sprintf("%s/gmail/v1/users/me/messages?q=is:unread&maxResults=%d", g.baseURL, maxUnreadList)
	var listResp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := g.getJSON(ctx, listURL, accessToken, &listResp); err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}
	if len(listResp.Messages) == 0 {
		return []entities.InboundEmail{}, nil
	}

	ids := listResp.Messages
	if len(ids) > maxUnreadFetch {
		ids = ids[:maxUnreadFetch]
	}

	emails := make([]entities.InboundEmail, len(ids))
	eg, gctx := errgroup.WithContext(ctx)
	for i, m := range ids {
		eg.Go(func() error {
			msgURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s", g.baseURL, m.ID)
			var msg gmailMessage
			if err := g.getJSON(gctx, msgURL, accessToken, &msg); err != nil {
				return fmt.Errorf("failed to fetch message %s: %w", m.ID, err)
			}
			emails[i] = normalizeEmail(&msg)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return emails, nil
}

func normalizeEmail(msg *gmailMessage) entities.InboundEmail {
	email := entities.InboundEmail{
		ID:       msg.ID,
		ThreadID: msg.ThreadID,
		Subject:  "No Subject",
		From:     "Unknown",
		Body:     flattenHTML(msg.Snippet),
	}
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			if h.Value != "" {
				email.Subject = h.Value
			}
		case "From":
			if h.Value != "" {
				email.From = h.Value
			}
		}
	}
	if millis, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		email.Timestamp = time.UnixMilli(millis)
	}
	return email
}

// SendReply posts a minimal single-part MIME message associated with the
// given thread, so the provider groups it as a reply.
func (g *GmailClient) SendReply(ctx context.Context, accessToken, threadID, replyText string) (map[string]any, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, ErrMissingThreadID
	}
	if strings.TrimSpace(replyText) == "" {
		return nil, ErrEmptyReply
	}
	if len(replyText) > MaxReplyLength {
		return nil, ErrReplyTooLong
	}

	raw, err := EncodeReplyMessage(replyText)
	if err != nil {
		return nil, fmt.Errorf("failed to build reply message: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"raw":      raw,
		"threadId": threadID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	sendURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/send", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send reply: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gmail API error (status %d): %s", resp.StatusCode, string(body))
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return data, nil
}

// EncodeReplyMessage normalizes line endings, wraps the text in a single-part
// text/plain MIME message, and base64url-encodes it without padding, per the
// provider's transport requirement.
func EncodeReplyMessage(replyText string) (string, error) {
	text := strings.ReplaceAll(replyText, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)

	var h message.Header
	h.Set("MIME-Version", "1.0")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

func (g *GmailClient) getJSON(ctx context.Context, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail API error (status %d): %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

var (
	htmlTagRe       = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

// flattenHTML converts an HTML snippet to plain text. Plain text passes
// through unchanged apart from whitespace collapsing.
func flattenHTML(s string) string {
	if !htmlTagRe.MatchString(s) {
		return strings.TrimSpace(whitespaceRunRe.ReplaceAllString(s, " "))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("script, style, head").Remove()
	text := doc.Text()
	return strings.TrimSpace(whitespaceRunRe.ReplaceAllString(text, " "))
}
