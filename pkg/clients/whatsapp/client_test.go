package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inhapress/stockledger/internal/config"
)

func TestSendTextMessage(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v20.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.WhatsAppConfig{AccessToken: "tok", PhoneNumberID: "12345", BaseURL: srv.URL, APIVersion: "v20.0"})
	resp, err := c.SendTextMessage(context.Background(), SendTextMessageRequest{To: "8210", Body: "재고 알림"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "wamid.1", resp.Messages[0].ID)
	assert.Equal(t, "8210", payload["to"])
	assert.Equal(t, "재고 알림", payload["text"].(map[string]any)["body"])
}

func TestSendTextMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
	}))
	defer srv.Close()

	c := NewClient(config.WhatsAppConfig{AccessToken: "tok", PhoneNumberID: "1", BaseURL: srv.URL, APIVersion: "v20.0"})
	_, err := c.SendTextMessage(context.Background(), SendTextMessageRequest{To: "8210", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid parameter")

	_, err = c.SendTextMessage(context.Background(), SendTextMessageRequest{Body: "x"})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "짧은", Truncate("짧은", 10))

	long := strings.Repeat("가", MaxBodyLength+10)
	cut := Truncate(long, MaxBodyLength)
	assert.Equal(t, MaxBodyLength, utf8.RuneCountInString(cut))
	assert.True(t, strings.HasSuffix(cut, "…"))
}
