package codec

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/amberlow/catalink/internal/catalog"
)

// MarshalPayload serializes the payload into its canonical JSON document:
// fixed field order, decimals as strings, timestamps as Unix seconds,
// optional fields omitted when zero. The integrity tag is computed over
// exactly these bytes.
func MarshalPayload(p *catalog.Payload) []byte {
	var e jx.Encoder

	e.ObjStart()
	e.FieldStart("formatVersion")
	e.Str(p.FormatVersion)
	e.FieldStart("generatedAt")
	e.Int64(p.GeneratedAt.Unix())
	if !p.ExpiresAt.IsZero() {
		e.FieldStart("expiresAt")
		e.Int64(p.ExpiresAt.Unix())
	}

	e.FieldStart("company")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(p.Company.Name)
	e.FieldStart("minimumOrder")
	e.Str(p.Company.MinimumOrder.String())
	e.FieldStart("currency")
	e.Str(p.Company.Currency)
	e.ObjEnd()

	e.FieldStart("customer")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.Customer.ID)
	e.FieldStart("name")
	e.Str(p.Customer.Name)
	e.FieldStart("tier")
	e.Str(p.Customer.Tier)
	e.FieldStart("discountRate")
	e.Str(p.Customer.DiscountRate.String())
	e.FieldStart("creditLimit")
	e.Str(p.Customer.CreditLimit.String())
	e.ObjEnd()

	if p.AllowEmpty {
		e.FieldStart("allowEmpty")
		e.Bool(true)
	}

	e.FieldStart("products")
	e.ArrStart()
	for i := range p.Products {
		encodeProduct(&e, &p.Products[i])
	}
	e.ArrEnd()
	e.ObjEnd()

	return e.Bytes()
}

func encodeProduct(e *jx.Encoder, pr *catalog.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(pr.ID)
	e.FieldStart("sku")
	e.Str(pr.SKU)
	e.FieldStart("title")
	e.Str(pr.Title)
	e.FieldStart("unitPrice")
	e.Str(pr.UnitPrice.String())
	e.FieldStart("msrp")
	e.Str(pr.MSRP.String())
	e.FieldStart("marginPercent")
	e.Str(pr.MarginPercent.String())
	e.FieldStart("category")
	e.Str(pr.Category)
	e.FieldStart("publisher")
	e.Str(pr.Publisher)
	e.FieldStart("minQty")
	e.Int(pr.MinQty)
	e.FieldStart("caseQty")
	e.Int(pr.CaseQty)
	e.FieldStart("inStock")
	e.Bool(pr.InStock)
	e.FieldStart("featured")
	e.Bool(pr.Featured)
	e.ObjEnd()
}

// UnmarshalPayload parses a canonical JSON document. Unknown fields are
// rejected as schema violations rather than stripped; syntax errors surface
// as plain parse errors. The result is not validated; callers use
// DecodeDocument for parse-plus-validate.
func UnmarshalPayload(doc []byte) (*catalog.Payload, error) {
	d := jx.DecodeBytes(doc)
	p := &catalog.Payload{}

	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "formatVersion":
			return decodeStr(d, &p.FormatVersion)
		case "generatedAt":
			return decodeTime(d, &p.GeneratedAt)
		case "expiresAt":
			return decodeTime(d, &p.ExpiresAt)
		case "company":
			return decodeCompany(d, &p.Company)
		case "customer":
			return decodeCustomer(d, &p.Customer)
		case "allowEmpty":
			v, err := d.Bool()
			p.AllowEmpty = v
			return err
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				pr, err := decodeProduct(d)
				if err != nil {
					return err
				}
				p.Products = append(p.Products, pr)
				return nil
			})
		default:
			return unknownField(key)
		}
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeCompany(d *jx.Decoder, c *catalog.Company) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			return decodeStr(d, &c.Name)
		case "minimumOrder":
			return decodeDecimal(d, "company.minimumOrder", &c.MinimumOrder)
		case "currency":
			return decodeStr(d, &c.Currency)
		default:
			return unknownField("company." + key)
		}
	})
}

func decodeCustomer(d *jx.Decoder, c *catalog.Customer) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return decodeStr(d, &c.ID)
		case "name":
			return decodeStr(d, &c.Name)
		case "tier":
			return decodeStr(d, &c.Tier)
		case "discountRate":
			return decodeDecimal(d, "customer.discountRate", &c.DiscountRate)
		case "creditLimit":
			return decodeDecimal(d, "customer.creditLimit", &c.CreditLimit)
		default:
			return unknownField("customer." + key)
		}
	})
}

func decodeProduct(d *jx.Decoder) (catalog.Product, error) {
	var pr catalog.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return decodeStr(d, &pr.ID)
		case "sku":
			return decodeStr(d, &pr.SKU)
		case "title":
			return decodeStr(d, &pr.Title)
		case "unitPrice":
			return decodeDecimal(d, "product.unitPrice", &pr.UnitPrice)
		case "msrp":
			return decodeDecimal(d, "product.msrp", &pr.MSRP)
		case "marginPercent":
			return decodeDecimal(d, "product.marginPercent", &pr.MarginPercent)
		case "category":
			return decodeStr(d, &pr.Category)
		case "publisher":
			return decodeStr(d, &pr.Publisher)
		case "minQty":
			return decodeInt(d, &pr.MinQty)
		case "caseQty":
			return decodeInt(d, &pr.CaseQty)
		case "inStock":
			v, err := d.Bool()
			pr.InStock = v
			return err
		case "featured":
			v, err := d.Bool()
			pr.Featured = v
			return err
		default:
			return unknownField("product." + key)
		}
	})
	return pr, err
}

func decodeStr(d *jx.Decoder, dst *string) error {
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func decodeInt(d *jx.Decoder, dst *int) error {
	v, err := d.Int()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func decodeTime(d *jx.Decoder, dst *time.Time) error {
	sec, err := d.Int64()
	if err != nil {
		return err
	}
	*dst = time.Unix(sec, 0).UTC()
	return nil
}

func decodeDecimal(d *jx.Decoder, field string, dst *decimal.Decimal) error {
	raw, err := d.Str()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return &catalog.SchemaViolationError{Field: field, Reason: "not a decimal: " + raw}
	}
	*dst = v
	return nil
}

func unknownField(key string) error {
	return &catalog.SchemaViolationError{Field: key, Reason: "unknown field"}
}
