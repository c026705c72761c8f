package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/quickeats/internal/domain/slug"
)

// ErrNotFound is returned by a Repository when no order has the given id.
var ErrNotFound = errors.New("order not found")

// Status is the position of an order in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Item is a line item snapshotted from the cart at checkout.
type Item struct {
	ItemID       string `json:"id"`
	Name         string `json:"name"`
	UnitPrice    int64  `json:"price"`
	Quantity     int    `json:"quantity"`
	ImageRef     string `json:"image,omitempty"`
	RestaurantID string `json:"restaurantId"`
}

// Location is where the customer was when the order was placed.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Order is a placed order. ID and CreatedAt are written once; Items and
// TotalAmount are never recomputed. Timestamps are epoch milliseconds.
type Order struct {
	ID                    string    `json:"id"`
	CustomerID            string    `json:"customerId"`
	CustomerName          string    `json:"customerName"`
	CustomerEmail         string    `json:"customerEmail"`
	CustomerPhone         string    `json:"customerPhone,omitempty"`
	RestaurantID          string    `json:"restaurantId"`
	RestaurantName        string    `json:"restaurantName"`
	Items                 []Item    `json:"items"`
	TotalAmount           int64     `json:"totalAmount"`
	Status                Status    `json:"status"`
	PaymentMethod         string    `json:"paymentMethod"`
	EstimatedDeliveryTime int       `json:"estimatedDeliveryTime,omitempty"`
	CustomerLocation      *Location `json:"customerLocation,omitempty"`
	ClientSessionID       string    `json:"clientSessionId,omitempty"`
	CreatedAt             int64     `json:"createdAt"`
	UpdatedAt             int64     `json:"updatedAt"`
}

// Clone returns a deep copy of o.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]Item, len(o.Items))
		copy(c.Items, o.Items)
	}
	if o.CustomerLocation != nil {
		loc := *o.CustomerLocation
		c.CustomerLocation = &loc
	}
	return c
}

// Subtotal sums unit price times quantity over items.
func Subtotal(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.UnitPrice * int64(it.Quantity)
	}
	return total
}

// Patch is a field-level partial update. Nil fields are left untouched.
type Patch struct {
	RestaurantID     *string   `json:"restaurantId,omitempty"`
	RestaurantName   *string   `json:"restaurantName,omitempty"`
	Items            []Item    `json:"items,omitempty"`
	TotalAmount      *int64    `json:"totalAmount,omitempty"`
	Status           *Status   `json:"status,omitempty"`
	PaymentMethod    *string   `json:"paymentMethod,omitempty"`
	CustomerID       *string   `json:"customerId,omitempty"`
	CustomerEmail    *string   `json:"customerEmail,omitempty"`
	CustomerName     *string   `json:"customerName,omitempty"`
	CustomerPhone    *string   `json:"customerPhone,omitempty"`
	ClientSessionID  *string   `json:"clientSessionId,omitempty"`
	CustomerLocation *Location `json:"customerLocation,omitempty"`
	UpdatedAt        int64     `json:"updatedAt,omitempty"`
}

// Empty reports whether p changes nothing besides the timestamp.
func (p Patch) Empty() bool {
	return p.RestaurantID == nil && p.RestaurantName == nil && p.Items == nil &&
		p.TotalAmount == nil && p.Status == nil && p.PaymentMethod == nil &&
		p.CustomerID == nil && p.CustomerEmail == nil && p.CustomerName == nil &&
		p.CustomerPhone == nil && p.ClientSessionID == nil && p.CustomerLocation == nil
}

// Apply writes the set fields of p onto o.
func (p Patch) Apply(o *Order) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&o.RestaurantID, p.RestaurantID)
	setString(&o.RestaurantName, p.RestaurantName)
	setString(&o.PaymentMethod, p.PaymentMethod)
	setString(&o.CustomerID, p.CustomerID)
	setString(&o.CustomerEmail, p.CustomerEmail)
	setString(&o.CustomerName, p.CustomerName)
	setString(&o.CustomerPhone, p.CustomerPhone)
	setString(&o.ClientSessionID, p.ClientSessionID)
	if p.Items != nil {
		o.Items = make([]Item, len(p.Items))
		copy(o.Items, p.Items)
	}
	if p.TotalAmount != nil {
		o.TotalAmount = *p.TotalAmount
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.CustomerLocation != nil {
		loc := *p.CustomerLocation
		o.CustomerLocation = &loc
	}
	if p.UpdatedAt != 0 {
		o.UpdatedAt = p.UpdatedAt
	}
}

// Repository is the realtime order store. Writes are last-write-wins and
// carry no transactional guarantee across orders.
type Repository interface {
	// Create stores o under a newly generated id and returns the id.
	Create(ctx context.Context, o *Order) (string, error)
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	Update(ctx context.Context, id string, p Patch) error
	Delete(ctx context.Context, id string) error
	// Subscribe calls fn with the full collection now and after every
	// change until cancel is called or ctx is done.
	Subscribe(ctx context.Context, fn func([]Order)) (func(), error)
}

// EventType names an order event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
	EventDeleted       EventType = "order.deleted"
)

// Event is published after a successful order mutation.
type Event struct {
	Type     EventType `json:"type"`
	OrderID  string    `json:"orderId"`
	Status   Status    `json:"status,omitempty"`
	Previous Status    `json:"previous,omitempty"`
	Order    *Order    `json:"order,omitempty"`
	At       int64     `json:"at"`
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Canonicalize returns the canonical restaurant slug of name.
func Canonicalize(name string) string {
	return slug.Canonicalize(name)
}

// BelongsTo reports whether o is an order of any restaurant in slugs,
// matching on either its restaurant id or name.
func (o Order) BelongsTo(slugs []string) bool {
	byID := Canonicalize(o.RestaurantID)
	byName := Canonicalize(o.RestaurantName)
	for _, s := range slugs {
		if s == byID || s == byName {
			return true
		}
	}
	return false
}
