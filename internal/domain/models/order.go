package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus tracks an order request from submission to fulfilment.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFulfilled OrderStatus = "FULFILLED"
)

// Label is the text stored in the orders file.
func (s OrderStatus) Label() string {
	switch s {
	case OrderPending:
		return "미처리"
	case OrderFulfilled:
		return "처리완료"
	default:
		return string(s)
	}
}

// ParseOrderStatus accepts stored labels and enum names.
func ParseOrderStatus(value string) (OrderStatus, error) {
	trimmed := strings.Join(strings.Fields(value), "")
	switch strings.ToUpper(trimmed) {
	case "미처리", "PENDING":
		return OrderPending, nil
	case "처리완료", "완료", "FULFILLED":
		return OrderFulfilled, nil
	}
	return "", fmt.Errorf("unknown order status %q", value)
}

// Order is a customer request for books. Orders never reserve stock.
type Order struct {
	ID                string      `json:"id"`
	Timestamp         time.Time   `json:"timestamp"`
	Client            string      `json:"client"`
	BookName          string      `json:"book_name"`
	RequestedQuantity int64       `json:"requested_quantity"`
	Status            OrderStatus `json:"status"`

	RawTimestamp string `json:"raw_timestamp,omitempty"`
}

// TimestampText renders the timestamp the way it is stored.
func (o Order) TimestampText() string {
	return FormatTimestamp(o.Timestamp, o.RawTimestamp)
}
