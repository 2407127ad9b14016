package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

// Kind is the lifecycle moment a notification is about.
type Kind string

const (
	KindPlaced    Kind = "placed"
	KindPayment   Kind = "payment"
	KindStatus    Kind = "status"
	KindCancelled Kind = "cancelled"
)

// Channel is the delivery medium.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Event is a self-contained notification request. It carries the order
// snapshot needed to render the message so consumers never read the order
// store.
type Event struct {
	ID        string
	Kind      Kind
	Channel   Channel
	OrderID   string
	Recipient string
	FirstName string
	Items     []string
	Amount    decimal.Decimal
	Status    string
	Address   order.Address
	CreatedAt time.Time
}

// Events builds the notifications for kind on o: an SMS when the order has a
// phone number, and an email on payment confirmation when it has an address.
func Events(kind Kind, o *order.Order, now time.Time, newID func() string) []Event {
	base := Event{
		Kind:      kind,
		OrderID:   o.ID,
		FirstName: o.Address.FirstName,
		Items:     o.ItemNames(),
		Amount:    o.Amount,
		Status:    string(o.Status),
		Address:   o.Address,
		CreatedAt: now.UTC(),
	}

	var out []Event
	if phone := NormalizePhone(o.Address.Phone); phone != "" {
		e := base
		e.ID = newID()
		e.Channel = ChannelSMS
		e.Recipient = phone
		out = append(out, e)
	}
	if kind == KindPayment && strings.TrimSpace(o.Address.Email) != "" {
		e := base
		e.ID = newID()
		e.Channel = ChannelEmail
		e.Recipient = strings.TrimSpace(o.Address.Email)
		out = append(out, e)
	}
	return out
}

// NormalizePhone strips whitespace and leading zeros.
func NormalizePhone(phone string) string {
	return strings.TrimLeft(strings.TrimSpace(phone), "0")
}

// Message renders the SMS body. trackURL is the storefront order tracking
// prefix; the order id is appended to it.
func Message(e Event, trackURL string) string {
	base := fmt.Sprintf("Your Order %q of price ₹%s", strings.Join(e.Items, ", "), e.Amount.String())
	track := strings.TrimRight(trackURL, "/") + "/" + e.OrderID

	switch e.Kind {
	case KindPlaced:
		return base + " has been placed successfully. Track it here: " + track
	case KindPayment:
		return base + " payment was successful. Track it here: " + track
	case KindStatus:
		return fmt.Sprintf("%s status has been updated to %q. Track it here: %s", base, e.Status, track)
	case KindCancelled:
		return base + " has been cancelled. Thank you for shopping with us."
	default:
		return base
	}
}

// Email renders the payment confirmation email.
func Email(e Event) (subject, body string) {
	a := e.Address
	subject = fmt.Sprintf("Your Order %s Confirmation", e.OrderID)
	body = fmt.Sprintf(`<h1>Order Received!</h1>
<p>Hi %s,</p>
<p>Thanks for your order (<strong>%s</strong>) of ₹%s.</p>
<p>We're getting it ready to ship to:</p>
<address>
  %s, %s,<br/>
  %s - %s<br/>
  %s
</address>
<p>We'll let you know when it ships.</p>
`, esc(e.FirstName), esc(e.OrderID), e.Amount.String(),
		esc(a.Street), esc(a.City), esc(a.State), esc(a.Zipcode), esc(a.Country))
	return subject, body
}

func esc(s string) string { return html.EscapeString(s) }
