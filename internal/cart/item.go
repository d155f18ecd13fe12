package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/afrimarket/internal/money"
)

// Product is what the catalog hands to Add.
type Product struct {
	ID         int64
	Name       string
	VendorName string
	UnitPrice  decimal.Decimal
	Currency   string
	Category   string
	ImageRef   string
}

// Item is one line of the cart.
// swagger:model CartItem
type Item struct {
	ProductID  int64           `json:"productId" example:"1"`
	Name       string          `json:"name" example:"Ndop cloth"`
	VendorName string          `json:"vendorName" example:"Bamenda Crafts"`
	UnitPrice  decimal.Decimal `json:"unitPrice" swaggertype:"string" example:"5000"`
	Currency   string          `json:"currency" example:"XAF"`
	Quantity   int             `json:"quantity" example:"2"`
	Category   string          `json:"category,omitempty"`
	ImageRef   string          `json:"imageRef,omitempty"`
}

// Subtotal is UnitPrice times Quantity.
func (it Item) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

var currencyCode = regexp.MustCompile(`\b[A-Z]{3}\b`)

// UnmarshalJSON accepts the current shape and the older browser shape
// {id, price:"XAF 1,500", vendor, image}, so carts stored by earlier
// clients keep loading.
func (it *Item) UnmarshalJSON(b []byte) error {
	type current Item
	var raw struct {
		current
		ID     json.RawMessage `json:"id"`
		Price  string          `json:"price"`
		Vendor string          `json:"vendor"`
		Image  string          `json:"image"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*it = Item(raw.current)

	if it.ProductID == 0 && len(raw.ID) > 0 {
		id, err := strconv.ParseInt(string(bytes.Trim(raw.ID, `"`)), 10, 64)
		if err != nil {
			return fmt.Errorf("cart item id %s: %w", raw.ID, err)
		}
		it.ProductID = id
	}
	if it.UnitPrice.IsZero() && raw.Price != "" {
		p, err := money.ParsePrice(raw.Price)
		if err != nil {
			return fmt.Errorf("cart item %d price %q: %w", it.ProductID, raw.Price, err)
		}
		it.UnitPrice = p
		if it.Currency == "" {
			it.Currency = currencyCode.FindString(raw.Price)
		}
	}
	if it.VendorName == "" {
		it.VendorName = raw.Vendor
	}
	if it.ImageRef == "" {
		it.ImageRef = raw.Image
	}
	return nil
}
