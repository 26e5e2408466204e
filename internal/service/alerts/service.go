package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/config"
	"github.com/inhapress/stockledger/internal/domain/models"
	client "github.com/inhapress/stockledger/pkg/clients/whatsapp"
)

// ErrDisabled is returned when alerts are sent without WhatsApp credentials.
var ErrDisabled = errors.New("alerts are disabled")

// StockSource provides the books below their safety level.
type StockSource interface {
	LowStock(ctx context.Context) ([]models.Book, error)
}

// OrderSource provides the unfulfilled order requests.
type OrderSource interface {
	Pending(ctx context.Context) ([]models.Order, error)
}

// Notifier sends operator digests.
type Notifier interface {
	Enabled() bool
	SendDigest(ctx context.Context) (Digest, error)
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Digest is the content of one operator alert.
type Digest struct {
	LowStock []models.Book  `json:"low_stock"`
	Pending  []models.Order `json:"pending_orders"`
	Sent     bool           `json:"sent"`
}

// Empty reports whether there is nothing to alert about.
func (d Digest) Empty() bool {
	return len(d.LowStock) == 0 && len(d.Pending) == 0
}

// Text renders the digest as a WhatsApp message.
func (d Digest) Text() string {
	var b strings.Builder
	b.WriteString("[재고 알림]\n")
	if len(d.LowStock) > 0 {
		fmt.Fprintf(&b, "안전 재고 미달 %d종\n", len(d.LowStock))
		for _, book := range d.LowStock {
			fmt.Fprintf(&b, "- %s: %d권 (안전 재고 %d)\n", book.Name, book.Quantity, book.SafetyStock)
		}
	}
	if len(d.Pending) > 0 {
		fmt.Fprintf(&b, "미처리 주문 %d건\n", len(d.Pending))
		for _, o := range d.Pending {
			fmt.Fprintf(&b, "- %s %s: %s %d권\n", o.TimestampText(), o.Client, o.BookName, o.RequestedQuantity)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Service pushes low-stock and pending-order digests through WhatsApp.
type Service struct {
	cfg    config.WhatsAppConfig
	client client.Client
	stock  StockSource
	orders OrderSource
	logger *zap.Logger
}

// NewService wires a new alert service. A nil client disables sending.
func NewService(cfg config.WhatsAppConfig, c client.Client, stock StockSource, orders OrderSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, client: c, stock: stock, orders: orders, logger: logger}
}

// Enabled reports whether a WhatsApp client and recipient are configured.
func (s *Service) Enabled() bool {
	return s.client != nil && s.cfg.AlertRecipient != ""
}

// Collect builds the current digest without sending it.
func (s *Service) Collect(ctx context.Context) (Digest, error) {
	var d Digest

	low, err := s.stock.LowStock(ctx)
	if err != nil {
		return Digest{}, fmt.Errorf("collect low stock: %w", err)
	}
	d.LowStock = low

	pending, err := s.orders.Pending(ctx)
	if err != nil {
		return Digest{}, fmt.Errorf("collect pending orders: %w", err)
	}
	d.Pending = pending

	return d, nil
}

// SendDigest collects the digest and sends it to the alert recipient. An
// empty digest is not sent.
func (s *Service) SendDigest(ctx context.Context) (Digest, error) {
	if !s.Enabled() {
		return Digest{}, ErrDisabled
	}

	d, err := s.Collect(ctx)
	if err != nil {
		return Digest{}, err
	}
	if d.Empty() {
		s.logger.Info("nothing to alert")
		return d, nil
	}

	req := models.OutboundMessageRequest{To: s.cfg.AlertRecipient, Message: d.Text()}
	if err := s.SendOutbound(ctx, req); err != nil {
		return d, err
	}
	d.Sent = true

	s.logger.Info("alert digest sent",
		zap.Int("low_stock", len(d.LowStock)),
		zap.Int("pending_orders", len(d.Pending)))
	return d, nil
}

// SendOutbound sends a free-form message; an empty recipient means the
// configured alert recipient.
func (s *Service) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	if s.client == nil {
		return ErrDisabled
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		to = s.cfg.AlertRecipient
	}

	_, err := s.client.SendTextMessage(ctx, client.SendTextMessageRequest{
		To:         to,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	if err != nil {
		return fmt.Errorf("send alert to %s: %w", to, err)
	}
	return nil
}
