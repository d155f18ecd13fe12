// Package cart holds the device-local shopping cart: line items keyed by
// product, their totals, and the checkout hand-off to the payment service.
package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/afrimarket/internal/money"
)

// Storage keys, fixed for the device.
const (
	ItemsKey   = "cart"
	PendingKey = "cart.pending"
)

var (
	ErrEmpty            = errors.New("cart is empty")
	ErrCheckoutInFlight = errors.New("a checkout is already in progress")
)

// Notice is a user-facing toast.
type Notice struct {
	Title       string
	Description string
	Destructive bool
}

type Notifier func(Notice)

// Pending is an online checkout that was accepted by the payment service
// but not yet confirmed paid.
type Pending struct {
	Reference   string    `json:"reference"`
	OrderID     string    `json:"orderId,omitempty"`
	URL         string    `json:"url,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	// Items are the lines the payment covers.
	Items  []Item    `json:"items,omitempty"`
	HeldAt time.Time `json:"heldAt"`
}

// Snapshot is a detached copy of the cart taken at checkout.
type Snapshot struct {
	Items       []Item
	Total       decimal.Decimal
	Currency    string
	Fingerprint string
}

type Store struct {
	mu       sync.Mutex
	items    []Item
	pending  *Pending
	inFlight bool
	// lines of the in-flight submission
	submitted []Item

	storage  Storage
	notify   Notifier
	currency string
}

type Option func(*Store)

func WithNotifier(n Notifier) Option { return func(s *Store) { s.notify = n } }

// WithCurrency sets the code stamped on lines that arrive without one.
func WithCurrency(code string) Option { return func(s *Store) { s.currency = code } }

// New hydrates a store from storage. Missing or unreadable state is an empty cart.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:  storage,
		notify:   func(Notice) {},
		currency: money.DefaultCurrency,
	}
	for _, o := range opts {
		o(s)
	}
	s.hydrate()
	return s
}

func (s *Store) hydrate() {
	if b, err := s.storage.Load(ItemsKey); err == nil {
		var stored []Item
		if json.Unmarshal(b, &stored) == nil {
			for _, it := range stored {
				if it.Quantity < 1 {
					continue
				}
				if it.Currency == "" {
					it.Currency = s.currency
				}
				if i := s.indexOf(it.ProductID); i >= 0 {
					s.items[i].Quantity += it.Quantity
					continue
				}
				s.items = append(s.items, it)
			}
		}
	}
	if b, err := s.storage.Load(PendingKey); err == nil {
		var p Pending
		if json.Unmarshal(b, &p) == nil && p.Reference != "" {
			s.pending = &p
		}
	}
}

func (s *Store) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ProductID == id {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (s *Store) persist() {
	items := s.items
	if items == nil {
		items = []Item{}
	}
	b, _ := json.Marshal(items)
	if err := s.storage.Save(ItemsKey, b); err != nil {
		s.notify(Notice{Title: "Cart Not Saved", Description: err.Error(), Destructive: true})
	}
	var pb []byte
	if s.pending != nil {
		pb, _ = json.Marshal(s.pending)
	} else {
		pb = []byte("null")
	}
	if err := s.storage.Save(PendingKey, pb); err != nil {
		s.notify(Notice{Title: "Cart Not Saved", Description: err.Error(), Destructive: true})
	}
}

// Add puts one unit of p in the cart.
func (s *Store) Add(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(p.ID); i >= 0 {
		s.items[i].Quantity++
		s.persist()
		s.notify(Notice{
			Title:       "Quantity Updated",
			Description: fmt.Sprintf("%s quantity increased to %d", p.Name, s.items[i].Quantity),
		})
		return
	}

	cur := p.Currency
	if cur == "" {
		cur = s.currency
	}
	s.items = append(s.items, Item{
		ProductID:  p.ID,
		Name:       p.Name,
		VendorName: p.VendorName,
		UnitPrice:  p.UnitPrice,
		Currency:   cur,
		Quantity:   1,
		Category:   p.Category,
		ImageRef:   p.ImageRef,
	})
	s.persist()
	s.notify(Notice{Title: "Added to Cart", Description: p.Name + " has been added to your cart"})
}

func (s *Store) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
}

func (s *Store) remove(id int64) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	gone := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.persist()
	s.notify(Notice{
		Title:       "Removed from Cart",
		Description: gone.Name + " has been removed from your cart",
		Destructive: true,
	})
}

// UpdateQuantity sets the line's quantity; zero or less removes it.
func (s *Store) UpdateQuantity(id int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		s.remove(id)
		return
	}
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.items[i].Quantity = qty
	s.persist()
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

func (s *Store) clear() {
	s.items = nil
	s.persist()
	s.notify(Notice{Title: "Cart Cleared", Description: "All items have been removed from your cart"})
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

// TotalItems is the sum of quantities, not the number of lines.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return total(s.items)
}

func total(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

func (s *Store) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Fingerprint(s.items)
}

// Fingerprint hashes the lines independently of their order.
func Fingerprint(items []Item) string {
	lines := make([]Item, len(items))
	copy(lines, items)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	h := sha256.New()
	for _, it := range lines {
		fmt.Fprintf(h, "%d:%d:%s:%s;", it.ProductID, it.Quantity, it.UnitPrice.String(), it.Currency)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Pending reports the held online checkout, if any.
func (s *Store) Pending() *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	cp := *s.pending
	return &cp
}

// BeginCheckout snapshots the cart and marks a submission in flight.
// It refuses while another submission runs or a held checkout awaits confirmation.
func (s *Store) BeginCheckout() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight || s.pending != nil {
		return Snapshot{}, ErrCheckoutInFlight
	}
	if len(s.items) == 0 {
		return Snapshot{}, ErrEmpty
	}
	s.inFlight = true
	items := append([]Item(nil), s.items...)
	s.submitted = items
	return Snapshot{
		Items:       items,
		Total:       total(items),
		Currency:    items[0].Currency,
		Fingerprint: Fingerprint(items),
	}, nil
}

// AbandonCheckout drops any in-flight or held checkout. The lines stay.
func (s *Store) AbandonCheckout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.submitted = nil
	if s.pending != nil {
		s.pending = nil
		s.persist()
	}
}

// HoldCheckout keeps the cart until the online payment is confirmed.
// Without explicit Items the hold covers the lines of the in-flight submission.
func (s *Store) HoldCheckout(p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if len(p.Items) == 0 {
		p.Items = s.submitted
	}
	s.submitted = nil
	if p.Fingerprint == "" {
		p.Fingerprint = Fingerprint(p.Items)
	}
	if p.HeldAt.IsZero() {
		p.HeldAt = time.Now().UTC()
	}
	s.pending = &p
	s.persist()
}

// CompleteCheckout removes the submitted lines after a checkout that needs
// no confirmation.
func (s *Store) CompleteCheckout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	paid := s.submitted
	s.submitted = nil
	s.pending = nil
	s.settle(paid)
}

// ConfirmCheckout removes the paid lines if reference matches the held
// checkout. Lines added after the hold stay in the cart.
func (s *Store) ConfirmCheckout(reference string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.Reference != reference {
		return false
	}
	p := s.pending
	s.pending = nil
	if len(p.Items) == 0 {
		// holds written before lines were recorded cover the whole cart
		s.clear()
		return true
	}
	s.settle(p.Items)
	return true
}

// settle takes paid quantities out of the cart. An untouched cart is simply cleared.
func (s *Store) settle(paid []Item) {
	if len(paid) == 0 || Fingerprint(s.items) == Fingerprint(paid) {
		s.clear()
		return
	}
	for _, it := range paid {
		i := s.indexOf(it.ProductID)
		if i < 0 {
			continue
		}
		s.items[i].Quantity -= it.Quantity
		if s.items[i].Quantity < 1 {
			s.items = append(s.items[:i], s.items[i+1:]...)
		}
	}
	s.persist()
	s.notify(Notice{Title: "Order Paid", Description: "Paid items have been removed from your cart"})
}
