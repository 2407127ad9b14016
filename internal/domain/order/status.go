package order

import (
	"net/url"
	"strings"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPlaced         Status = "Order Placed"
	StatusPacking        Status = "Packing"
	StatusShipped        Status = "Shipped"
	StatusOutForDelivery Status = "Out for delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

// forward is the admin-driven fulfilment chain.
var forward = []Status{
	StatusPlaced,
	StatusPacking,
	StatusShipped,
	StatusOutForDelivery,
	StatusDelivered,
}

func rank(s Status) int {
	for i, f := range forward {
		if f == s {
			return i
		}
	}
	return -1
}

// ParseStatus maps a client supplied status string to a Status.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range append(forward, StatusCancelled) {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further status change is possible.
// Delivered orders may still open an exchange, which is not a status.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Cancellable reports whether a user may cancel an order in this status.
func (s Status) Cancellable() bool {
	return s == StatusPlaced || s == StatusPacking
}

// Exchangeable reports whether the exchange workflow may be opened.
func (s Status) Exchangeable() bool {
	return s == StatusDelivered
}

// CanAdvance reports whether an admin may move an order from s to target.
// Only forward moves along the fulfilment chain are allowed; steps may be
// skipped.
func (s Status) CanAdvance(target Status) bool {
	from, to := rank(s), rank(target)
	if from < 0 || to < 0 {
		return false
	}
	return to > from
}

// ValidateTrackingURL checks that raw is an absolute http(s) URL.
func ValidateTrackingURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidTrackingURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidTrackingURL
	}
	return u.String(), nil
}
