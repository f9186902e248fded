package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// snapshotVersion is the serialization version of the cart snapshot blob.
const snapshotVersion = 1

// Snapshot serializes the ledger's line items into a versioned blob the
// caller can persist between sessions. The ledger itself never touches
// storage.
func (l *Ledger) Snapshot() []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("version")
	e.Int(snapshotVersion)
	e.FieldStart("customerId")
	e.Str(l.cat.Customer.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range l.items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

// Restore replaces the ledger's contents with a previously taken snapshot.
// Line items whose product no longer exists in the active catalog are
// dropped and their ids returned: a stale cart degrades instead of failing
// the whole session.
func (l *Ledger) Restore(blob []byte) (dropped []string, err error) {
	var (
		version int
		items   []LineItem
	)

	d := jx.DecodeBytes(blob)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "version":
			v, err := d.Int()
			version = v
			return err
		case "customerId":
			_, err := d.Str()
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item LineItem
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "productId":
						v, err := d.Str()
						item.ProductID = v
						return err
					case "quantity":
						v, err := d.Int()
						item.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				items = append(items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse cart snapshot")
	}
	if version != snapshotVersion {
		return nil, errors.Errorf("unsupported cart snapshot version %d", version)
	}

	l.items = l.items[:0]
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		if l.cat.Product(item.ProductID) == nil {
			dropped = append(dropped, item.ProductID)
			continue
		}
		if i := l.find(item.ProductID); i >= 0 {
			l.items[i].Quantity += item.Quantity
			continue
		}
		l.items = append(l.items, item)
	}
	return dropped, nil
}
