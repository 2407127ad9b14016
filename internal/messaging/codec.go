package messaging

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

// EncodeEvent writes e as a JSON object. Amounts are encoded as decimal
// strings so no precision is lost in transit.
func EncodeEvent(e notify.Event) []byte {
	var w jx.Writer
	w.ObjStart()
	field(&w, "id", e.ID, true)
	field(&w, "kind", string(e.Kind), false)
	field(&w, "channel", string(e.Channel), false)
	field(&w, "order_id", e.OrderID, false)
	field(&w, "recipient", e.Recipient, false)
	field(&w, "first_name", e.FirstName, false)

	w.Comma()
	w.FieldStart("items")
	w.ArrStart()
	for i, name := range e.Items {
		if i > 0 {
			w.Comma()
		}
		w.Str(name)
	}
	w.ArrEnd()

	field(&w, "amount", e.Amount.String(), false)
	field(&w, "status", e.Status, false)

	w.Comma()
	w.FieldStart("address")
	encodeAddress(&w, e.Address)

	field(&w, "created_at", e.CreatedAt.UTC().Format(time.RFC3339Nano), false)
	w.ObjEnd()
	return w.Buf
}

func encodeAddress(w *jx.Writer, a order.Address) {
	w.ObjStart()
	field(w, "first_name", a.FirstName, true)
	field(w, "last_name", a.LastName, false)
	field(w, "email", a.Email, false)
	field(w, "phone", a.Phone, false)
	field(w, "street", a.Street, false)
	field(w, "city", a.City, false)
	field(w, "state", a.State, false)
	field(w, "zipcode", a.Zipcode, false)
	field(w, "country", a.Country, false)
	w.ObjEnd()
}

func field(w *jx.Writer, name, value string, first bool) {
	if !first {
		w.Comma()
	}
	w.FieldStart(name)
	w.Str(value)
}

// DecodeEvent parses an event written by EncodeEvent. Unknown fields are
// skipped.
func DecodeEvent(data []byte) (notify.Event, error) {
	var e notify.Event
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return str(d, &e.ID)
		case "kind":
			var v string
			if err := str(d, &v); err != nil {
				return err
			}
			e.Kind = notify.Kind(v)
		case "channel":
			var v string
			if err := str(d, &v); err != nil {
				return err
			}
			e.Channel = notify.Channel(v)
		case "order_id":
			return str(d, &e.OrderID)
		case "recipient":
			return str(d, &e.Recipient)
		case "first_name":
			return str(d, &e.FirstName)
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				e.Items = append(e.Items, v)
				return nil
			})
		case "amount":
			var v string
			if err := str(d, &v); err != nil {
				return err
			}
			amount, err := decimal.NewFromString(v)
			if err != nil {
				return errors.Wrap(err, "amount")
			}
			e.Amount = amount
		case "status":
			return str(d, &e.Status)
		case "address":
			return decodeAddress(d, &e.Address)
		case "created_at":
			var v string
			if err := str(d, &v); err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return errors.Wrap(err, "created_at")
			}
			e.CreatedAt = t
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return notify.Event{}, errors.Wrap(err, "decode event")
	}
	if e.Kind == "" || e.Channel == "" || e.OrderID == "" {
		return notify.Event{}, errors.New("decode event: kind, channel and order_id are required")
	}
	return e, nil
}

func decodeAddress(d *jx.Decoder, a *order.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "first_name":
			return str(d, &a.FirstName)
		case "last_name":
			return str(d, &a.LastName)
		case "email":
			return str(d, &a.Email)
		case "phone":
			return str(d, &a.Phone)
		case "street":
			return str(d, &a.Street)
		case "city":
			return str(d, &a.City)
		case "state":
			return str(d, &a.State)
		case "zipcode":
			return str(d, &a.Zipcode)
		case "country":
			return str(d, &a.Country)
		default:
			return d.Skip()
		}
	})
}

func str(d *jx.Decoder, dst *string) error {
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
