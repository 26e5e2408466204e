package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inhapress/stockledger/internal/config"
	"github.com/inhapress/stockledger/internal/domain/models"
	client "github.com/inhapress/stockledger/pkg/clients/whatsapp"
)

type stubSources struct {
	low     []models.Book
	pending []models.Order
	err     error
}

func (s stubSources) LowStock(context.Context) ([]models.Book, error) { return s.low, s.err }
func (s stubSources) Pending(context.Context) ([]models.Order, error)  { return s.pending, nil }

type fakeWhatsApp struct {
	sent []client.SendTextMessageRequest
	err  error
}

func (f *fakeWhatsApp) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &client.SendTextMessageResponse{}, nil
}

var cfg = config.WhatsAppConfig{AlertRecipient: "821012345678"}

func TestSendDigest(t *testing.T) {
	src := stubSources{
		low: []models.Book{{Name: "Go 입문", Quantity: 2, SafetyStock: 5}},
		pending: []models.Order{{
			Timestamp: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), Client: "알라딘", BookName: "Go 입문", RequestedQuantity: 10,
		}},
	}
	wa := &fakeWhatsApp{}
	svc := NewService(cfg, wa, src, src, nil)

	d, err := svc.SendDigest(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Sent)

	require.Len(t, wa.sent, 1)
	assert.Equal(t, "821012345678", wa.sent[0].To)
	assert.Contains(t, wa.sent[0].Body, "- Go 입문: 2권 (안전 재고 5)")
	assert.Contains(t, wa.sent[0].Body, "- 2024-04-01 09:00:00 알라딘: Go 입문 10권")
}

func TestSendDigest_NothingToSend(t *testing.T) {
	wa := &fakeWhatsApp{}
	svc := NewService(cfg, wa, stubSources{}, stubSources{}, nil)

	d, err := svc.SendDigest(context.Background())
	require.NoError(t, err)
	assert.False(t, d.Sent)
	assert.Empty(t, wa.sent)
}

func TestSendDigest_Disabled(t *testing.T) {
	svc := NewService(cfg, nil, stubSources{}, stubSources{}, nil)
	assert.False(t, svc.Enabled())

	_, err := svc.SendDigest(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, svc.SendOutbound(context.Background(), models.OutboundMessageRequest{Message: "x"}), ErrDisabled)
}

func TestSendDigest_Failures(t *testing.T) {
	sourceErr := errors.New("catalog unavailable")
	svc := NewService(cfg, &fakeWhatsApp{}, stubSources{err: sourceErr}, stubSources{}, nil)
	_, err := svc.SendDigest(context.Background())
	assert.ErrorIs(t, err, sourceErr)

	sendErr := errors.New("whatsapp down")
	src := stubSources{low: []models.Book{{Name: "A"}}}
	svc = NewService(cfg, &fakeWhatsApp{err: sendErr}, src, src, nil)
	_, err = svc.SendDigest(context.Background())
	assert.ErrorIs(t, err, sendErr)
}

func TestSendOutbound_DefaultsRecipient(t *testing.T) {
	wa := &fakeWhatsApp{}
	svc := NewService(cfg, wa, stubSources{}, stubSources{}, nil)

	require.NoError(t, svc.SendOutbound(context.Background(), models.OutboundMessageRequest{Message: "hello"}))
	require.NoError(t, svc.SendOutbound(context.Background(), models.OutboundMessageRequest{To: "8299", Message: "hi"}))

	assert.Equal(t, "821012345678", wa.sent[0].To)
	assert.Equal(t, "8299", wa.sent[1].To)
}
