package product

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the dd-MM-yyyy layout products use for createAt.
const DateLayout = "02-01-2006"

// Product is the resource exchanged with the product service. The gateway
// relays it without validating any field.
// swagger:model Product
type Product struct {
	ID       string          `json:"id,omitempty"       example:"42"`
	Name     string          `json:"name"               example:"Pen"`
	Price    float64         `json:"price"              example:"1.5"`
	CreateAt *Date           `json:"createAt,omitempty" swaggertype:"string" example:"15-10-2026"`
	Image    []byte          `json:"image,omitempty"    swaggertype:"string" format:"base64"`
	Category json.RawMessage `json:"category,omitempty" swaggertype:"object"`
}

// ImageProductDTO is the create payload: a product plus an optional
// base64-encoded image.
// swagger:model ImageProductDTO
type ImageProductDTO struct {
	Product      *Product `json:"product"`
	ImageProduct string   `json:"imageProduct,omitempty" example:"aGVsbG8="`
}

// ToProduct returns the product with the decoded image attached. An empty
// imageProduct leaves the image unset.
func (d ImageProductDTO) ToProduct() (*Product, error) {
	if d.Product == nil {
		return nil, fmt.Errorf("%w: product is required", ErrInvalidBody)
	}
	p := *d.Product
	if d.ImageProduct == "" {
		return &p, nil
	}
	img, err := base64.StdEncoding.DecodeString(d.ImageProduct)
	if err != nil {
		return nil, &DecodeError{Field: "imageProduct", Err: err}
	}
	p.Image = img
	return &p, nil
}

// Date is a calendar date rendered as dd-MM-yyyy. On input it also accepts
// yyyy-MM-dd, RFC 3339 timestamps and epoch milliseconds, which is what
// upstream serializers commonly emit.
type Date struct {
	time.Time
}

var dateLayouts = []string{DateLayout, time.DateOnly, time.RFC3339Nano}

func NewDate(t time.Time) *Date {
	return &Date{Time: t}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) > 0 && s[0] != '"' {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid date %s: %w", s, err)
		}
		d.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return errors.New("invalid date " + strconv.Quote(raw) + ", want dd-MM-yyyy")
}
