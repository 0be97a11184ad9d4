package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundWhatsApp(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		form := url.Values{}
		form.Set("From", "whatsapp:+15551234567")
		form.Set("Body", "hello there")
		form.Set("MessageSid", "SM123")
		form.Set("ProfileName", "Alice")

		msg, err := ParseInboundWhatsApp(form)
		require.NoError(t, err)
		assert.Equal(t, "whatsapp:+15551234567", msg.From)
		assert.Equal(t, "hello there", msg.Body)
		assert.Equal(t, "SM123", msg.ExternalID)
		assert.Equal(t, "Alice", msg.DisplayName)
	})

	t.Run("profile name is optional", func(t *testing.T) {
		form := url.Values{}
		form.Set("From", "whatsapp:+15551234567")
		form.Set("Body", "hi")
		form.Set("MessageSid", "SM123")

		msg, err := ParseInboundWhatsApp(form)
		require.NoError(t, err)
		assert.Empty(t, msg.DisplayName)
	})

	for _, missing := range []string{"From", "Body", "MessageSid"} {
		t.Run("missing "+missing, func(t *testing.T) {
			form := url.Values{}
			form.Set("From", "whatsapp:+15551234567")
			form.Set("Body", "hi")
			form.Set("MessageSid", "SM123")
			form.Del(missing)

			_, err := ParseInboundWhatsApp(form)
			assert.ErrorIs(t, err, ErrMissingFormData)
		})
	}
}

func TestNormalizeWhatsAppAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare number gets prefix", "+15551234567", "whatsapp:+15551234567"},
		{"prefix preserved", "whatsapp:+15551234567", "whatsapp:+15551234567"},
		{"surrounding whitespace trimmed", "  +15551234567 ", "whatsapp:+15551234567"},
		{"zero-width characters stripped", "+1555​1234567", "whatsapp:+15551234567"},
		{"bidi overrides stripped", "‮+15551234567‬", "whatsapp:+15551234567"},
		{"control characters stripped", "+1555123\x004567", "whatsapp:+15551234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWhatsAppAddress(tt.in))
		})
	}
}

func TestTwilioClient_SendMessage(t *testing.T) {
	t.Run("empty body rejected", func(t *testing.T) {
		client := NewTwilioClient("AC123", "token", "+15550000000")
		_, err := client.SendMessage(context.Background(), "+15551234567", "   ")
		assert.ErrorIs(t, err, ErrEmptyBody)
	})

	t.Run("sends form with normalized addresses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)

			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "AC123", user)
			assert.Equal(t, "token", pass)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "whatsapp:+15550000000", r.PostForm.Get("From"))
			assert.Equal(t, "whatsapp:+15551234567", r.PostForm.Get("To"))
			assert.Equal(t, "see you Friday", r.PostForm.Get("Body"))

			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"sid": "SM456", "status": "queued"}`))
		}))
		defer srv.Close()

		client := NewTwilioClient("AC123", "token", "+15550000000")
		client.baseURL = srv.URL

		data, err := client.SendMessage(context.Background(), "+15551234567", "see you Friday")
		require.NoError(t, err)
		assert.Equal(t, "SM456", data["sid"])
	})

	t.Run("provider error body propagated", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": 21211, "message": "Invalid 'To' Phone Number"}`))
		}))
		defer srv.Close()

		client := NewTwilioClient("AC123", "token", "+15550000000")
		client.baseURL = srv.URL

		_, err := client.SendMessage(context.Background(), "garbage", "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
	})
}
