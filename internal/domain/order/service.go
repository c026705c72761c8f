package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/quickeats/internal/domain/cart"
	"github.com/xenking/quickeats/internal/domain/catalog"
	"github.com/xenking/quickeats/internal/domain/identity"
	"github.com/xenking/quickeats/internal/domain/session"
)

// Sentinel errors for checkout and order management.
var (
	ErrUnauthenticated = identity.ErrUnauthenticated
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidPhone    = errors.New("phone must contain 7 to 15 digits")
	ErrInvalidLocation = errors.New("location out of range")
	ErrForbidden       = errors.New("caller may not manage this order")
)

// PersistenceError wraps a failed write or read against the order store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Defaults applied to new orders.
const (
	DefaultPaymentMethod         = "deposit"
	DefaultEstimatedDeliveryTime = 30
	defaultCustomerName          = "Customer"
)

const enrichTimeout = 10 * time.Second

// Catalog resolves cart restaurant ids to display names.
type Catalog interface {
	catalog.Resolver
	DefaultRestaurant() (catalog.Restaurant, bool)
}

// Ownership resolves the restaurants an identity may manage.
type Ownership interface {
	OwnedRestaurants(ctx context.Context, id identity.Identity) ([]string, error)
}

// Locator yields the customer position for an order. Implementations may
// block; they run after checkout has returned.
type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Location, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (Location, error) { return f(ctx) }

// CheckoutRequest holds everything checkout reads from the caller's session.
type CheckoutRequest struct {
	Customer      identity.Identity
	Cart          *cart.Store
	Session       *session.Session
	Phone         string
	PaymentMethod string
	// Locator is optional.
	Locator Locator
}

// Service implements checkout and the owner-driven order lifecycle.
type Service struct {
	orders  Repository
	catalog Catalog
	owners  Ownership
	events  Publisher
	lg      *zap.Logger
	tracer  trace.Tracer

	placed      metric.Int64Counter
	transitions metric.Int64Counter
	enrichFail  metric.Int64Counter

	now   func() time.Time
	spawn func(func())
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	cat Catalog,
	owners Ownership,
	events Publisher,
	lg *zap.Logger,
	meter metric.Meter,
	tracer trace.Tracer,
) (*Service, error) {
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders created at checkout"))
	if err != nil {
		return nil, fmt.Errorf("create placed counter: %w", err)
	}
	transitions, err := meter.Int64Counter("orders.transitions",
		metric.WithDescription("Order status transitions"))
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	enrichFail, err := meter.Int64Counter("orders.enrichment_failures",
		metric.WithDescription("Failed context or location enrichment"))
	if err != nil {
		return nil, fmt.Errorf("create enrichment counter: %w", err)
	}
	return &Service{
		orders:      orders,
		catalog:     cat,
		owners:      owners,
		events:      events,
		lg:          lg,
		tracer:      tracer,
		placed:      placed,
		transitions: transitions,
		enrichFail:  enrichFail,
		now:         time.Now,
		spawn:       func(fn func()) { go fn() },
	}, nil
}

// Checkout turns the session cart into a confirmed order. The ordered lines
// leave the cart only after the order store has accepted the order.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer span.End()

	if !req.Customer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	entries := req.Cart.Items()
	if len(entries) == 0 {
		return nil, ErrEmptyCart
	}
	phone, err := ValidatePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	restaurantName, restaurantID := s.resolveRestaurant(ctx, entries[0].RestaurantID)
	items := make([]Item, len(entries))
	for i, e := range entries {
		items[i] = Item{
			ItemID:       e.ItemID,
			Name:         e.Name,
			UnitPrice:    e.UnitPrice,
			Quantity:     e.Quantity,
			ImageRef:     e.ImageRef,
			RestaurantID: restaurantID,
		}
	}

	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	now := s.now().UnixMilli()
	o := &Order{
		CustomerID:            req.Customer.UID,
		CustomerName:          customerName(req.Customer),
		CustomerEmail:         req.Customer.Email,
		CustomerPhone:         phone,
		RestaurantID:          restaurantID,
		RestaurantName:        restaurantName,
		Items:                 items,
		TotalAmount:           Subtotal(items),
		Status:                StatusConfirmed,
		PaymentMethod:         paymentMethod,
		EstimatedDeliveryTime: DefaultEstimatedDeliveryTime,
		ClientSessionID:       req.Session.ClientSessionID(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	span.SetAttributes(attribute.String("restaurant", restaurantID))

	id, err := s.orders.Create(ctx, o)
	if err != nil {
		s.lg.Error("Create order failed", zap.Error(err), zap.String("customer", o.CustomerID))
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		return nil, &PersistenceError{Op: "create order", Err: err}
	}
	o.ID = id
	span.SetAttributes(attribute.String("order.id", id))

	if err := s.UpsertContext(ctx, id, *o); err != nil {
		s.enrichmentFailed(ctx, "context", id, err)
	}
	if req.Locator != nil {
		bg := context.WithoutCancel(ctx)
		s.spawn(func() { s.locate(bg, id, req.Locator) })
	}

	// Lines added while the order was being created stay in the cart.
	req.Cart.RemoveEntries(entries)
	if err := req.Session.RecordOrder(id); err != nil {
		s.lg.Warn("Record order in session failed", zap.Error(err), zap.String("order_id", id))
	}
	req.Cart.Close()

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("restaurant", restaurantID)))
	created := o.Clone()
	s.publish(ctx, Event{Type: EventCreated, OrderID: id, Status: o.Status, Order: &created, At: now})

	out := o.Clone()
	return &out, nil
}

func customerName(id identity.Identity) string {
	switch {
	case id.DisplayName != "":
		return id.DisplayName
	case id.Email != "":
		return id.Email
	default:
		return defaultCustomerName
	}
}

// resolveRestaurant returns the display name and canonical slug for a cart
// restaurant id. Unresolvable or placeholder names fall back to the catalog
// default restaurant.
func (s *Service) resolveRestaurant(ctx context.Context, rawID string) (name, id string) {
	name, err := s.catalog.Resolve(ctx, rawID)
	if err == nil && !placeholderName(name) {
		return name, Canonicalize(name)
	}
	if def, ok := s.catalog.DefaultRestaurant(); ok {
		s.lg.Debug("Restaurant fallback", zap.String("restaurant_id", rawID), zap.String("fallback", def.Name))
		return def.Name, def.Slug()
	}
	return rawID, Canonicalize(rawID)
}

var placeholderNames = map[string]struct{}{
	"default":             {},
	"restaurant":          {},
	"selected restaurant": {},
}

// placeholderName reports names that are empty, generic, or look like a raw
// id (a single token containing a digit, such as "r1").
func placeholderName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return true
	}
	if _, ok := placeholderNames[n]; ok {
		return true
	}
	return !strings.ContainsAny(n, " \t") && strings.ContainsAny(n, "0123456789")
}

// ValidatePhone accepts 7 to 15 digits once spaces and the characters
// + - . ( ) are removed. It returns the trimmed input.
func ValidatePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	digits := 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune("+-.() ", r):
		default:
			return "", ErrInvalidPhone
		}
	}
	if digits < 7 || digits > 15 {
		return "", ErrInvalidPhone
	}
	return raw, nil
}

// UpsertContext fills fields of the stored order that are absent with the
// values from known. Stored values are never overwritten.
func (s *Service) UpsertContext(ctx context.Context, id string, known Order) error {
	existing, err := s.orders.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	p := contextPatch(*existing, known)
	if p.Empty() {
		return nil
	}
	p.UpdatedAt = s.now().UnixMilli()
	if err := s.orders.Update(ctx, id, p); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func contextPatch(existing, known Order) Patch {
	var p Patch
	fill := func(stored, local string) *string {
		if stored != "" || local == "" {
			return nil
		}
		return &local
	}
	if existing.RestaurantID == "" && known.RestaurantID != "" {
		canonical := Canonicalize(known.RestaurantID)
		p.RestaurantID = &canonical
	}
	p.RestaurantName = fill(existing.RestaurantName, known.RestaurantName)
	if len(existing.Items) == 0 && len(known.Items) > 0 {
		p.Items = known.Items
	}
	if existing.TotalAmount == 0 && known.TotalAmount != 0 {
		total := known.TotalAmount
		p.TotalAmount = &total
	}
	if existing.Status == "" && known.Status != "" {
		status := known.Status
		p.Status = &status
	}
	p.PaymentMethod = fill(existing.PaymentMethod, known.PaymentMethod)
	p.CustomerID = fill(existing.CustomerID, known.CustomerID)
	p.CustomerEmail = fill(existing.CustomerEmail, known.CustomerEmail)
	p.CustomerName = fill(existing.CustomerName, known.CustomerName)
	p.CustomerPhone = fill(existing.CustomerPhone, known.CustomerPhone)
	p.ClientSessionID = fill(existing.ClientSessionID, known.ClientSessionID)
	return p
}

func (s *Service) locate(ctx context.Context, id string, l Locator) {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	loc, err := l.Locate(ctx)
	if err != nil {
		// Denied or unavailable geolocation is not a failure.
		s.lg.Debug("No location for order", zap.String("order_id", id), zap.Error(err))
		return
	}
	if err := s.attachLocation(ctx, id, loc); err != nil {
		s.enrichmentFailed(ctx, "location", id, err)
	}
}

func (s *Service) enrichmentFailed(ctx context.Context, kind, id string, err error) {
	s.lg.Warn("Order enrichment failed",
		zap.String("kind", kind),
		zap.String("order_id", id),
		zap.Error(err),
	)
	s.enrichFail.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// AttachLocation records where the customer placed the order from. Only the
// customer of the order, as matched by ForCustomer, may set it.
func (s *Service) AttachLocation(ctx context.Context, v Viewer, id string, loc Location) error {
	if err := validateLocation(loc); err != nil {
		return err
	}
	if err := s.authorizeCustomer(ctx, v, id); err != nil {
		return err
	}
	return s.attachLocation(ctx, id, loc)
}

func validateLocation(loc Location) error {
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return ErrInvalidLocation
	}
	return nil
}

func (s *Service) attachLocation(ctx context.Context, id string, loc Location) error {
	if err := validateLocation(loc); err != nil {
		return err
	}
	err := s.orders.Update(ctx, id, Patch{CustomerLocation: &loc, UpdatedAt: s.now().UnixMilli()})
	if err != nil {
		return &PersistenceError{Op: "update location", Err: err}
	}
	return nil
}

// UpdatePhone replaces the contact phone of an order placed by v.
func (s *Service) UpdatePhone(ctx context.Context, v Viewer, id, phone string) error {
	phone, err := ValidatePhone(phone)
	if err != nil {
		return err
	}
	if err := s.authorizeCustomer(ctx, v, id); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, id, Patch{CustomerPhone: &phone, UpdatedAt: s.now().UnixMilli()}); err != nil {
		return &PersistenceError{Op: "update phone", Err: err}
	}
	return nil
}

func (s *Service) authorizeCustomer(ctx context.Context, v Viewer, id string) error {
	o, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !o.PlacedBy(v) {
		return ErrForbidden
	}
	return nil
}

// Advance moves an order one step forward. Only an owner of the order's
// restaurant may do so, and the returned order reflects the stored write.
func (s *Service) Advance(ctx context.Context, actor identity.Identity, id string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Advance", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	o, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	owned, err := s.owners.OwnedRestaurants(ctx, actor)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve ownership", Err: err}
	}
	if !o.BelongsTo(owned) {
		return nil, ErrForbidden
	}

	next, err := Next(o.Status)
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	if err := s.orders.Update(ctx, id, Patch{Status: &next, UpdatedAt: now}); err != nil {
		s.lg.Error("Advance order failed",
			zap.String("order_id", id),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "update status")
		return nil, &PersistenceError{Op: "update status", Err: err}
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(o.Status)),
		attribute.String("to", string(next)),
	))
	s.publish(ctx, Event{Type: EventStatusChanged, OrderID: id, Status: next, Previous: o.Status, At: now})

	prev := o.Status
	o.Status = next
	o.UpdatedAt = now
	s.lg.Info("Order advanced",
		zap.String("order_id", id),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	return o, nil
}

// Delete removes an order. Only admins may delete.
func (s *Service) Delete(ctx context.Context, actor identity.Identity, id string) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if !actor.Admin {
		return ErrForbidden
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return &PersistenceError{Op: "delete order", Err: err}
	}
	s.lg.Info("Order deleted", zap.String("order_id", id), zap.String("by", actor.UID))
	s.publish(ctx, Event{Type: EventDeleted, OrderID: id, At: s.now().UnixMilli()})
	return nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get order", Err: err}
	}
	return o, nil
}

// List returns the full order collection.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.lg.Warn("Publish order event failed",
			zap.String("type", string(e.Type)),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
