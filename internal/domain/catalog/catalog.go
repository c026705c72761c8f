// Package catalog provides read-only access to the static restaurant list.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/quickeats/internal/domain/slug"
)

// ErrUnknownRestaurant is returned when an id matches no catalog entry.
var ErrUnknownRestaurant = errors.New("unknown restaurant")

// Restaurant is a catalog entry.
type Restaurant struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Region string `json:"region,omitempty"`
	Image  string `json:"image,omitempty"`
}

// Slug returns the canonical id of the restaurant.
func (r Restaurant) Slug() string {
	return slug.Canonicalize(r.Name)
}

// Resolver maps a free-form restaurant id to a display name.
type Resolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

var _ Resolver = (*Catalog)(nil)

// Catalog is an immutable list of restaurants.
type Catalog struct {
	restaurants []Restaurant
	bySlug      map[string]Restaurant
}

// New builds a Catalog. When two entries share a slug the first wins.
func New(restaurants []Restaurant) *Catalog {
	c := &Catalog{
		restaurants: restaurants,
		bySlug:      make(map[string]Restaurant, len(restaurants)),
	}
	for _, r := range restaurants {
		if _, ok := c.bySlug[r.Slug()]; !ok {
			c.bySlug[r.Slug()] = r
		}
	}
	return c
}

type fileFormat struct {
	Restaurants []Restaurant `json:"restaurants"`
}

// Load reads a catalog JSON file. Paths ending in .gz are decompressed.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return Decode(r)
}

// Decode parses a catalog document from r.
func Decode(r io.Reader) (*Catalog, error) {
	var doc fileFormat
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return New(doc.Restaurants), nil
}

// Restaurants returns all entries in catalog order.
func (c *Catalog) Restaurants() []Restaurant {
	out := make([]Restaurant, len(c.restaurants))
	copy(out, c.restaurants)
	return out
}

// Resolve returns the display name of the restaurant whose canonical slug
// equals the canonical form of id.
func (c *Catalog) Resolve(_ context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrUnknownRestaurant
	}
	r, ok := c.bySlug[slug.Canonicalize(id)]
	if !ok {
		return "", ErrUnknownRestaurant
	}
	return r.Name, nil
}

// DefaultRestaurant returns the first entry that has a contact email.
func (c *Catalog) DefaultRestaurant() (Restaurant, bool) {
	for _, r := range c.restaurants {
		if r.Email != "" {
			return r, true
		}
	}
	return Restaurant{}, false
}

// OwnedBy returns the slugs of restaurants listing email as their contact.
func (c *Catalog) OwnedBy(email string) []string {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	var out []string
	for _, r := range c.restaurants {
		if strings.EqualFold(r.Email, email) {
			out = append(out, r.Slug())
		}
	}
	return out
}

// IsOwnerEmail reports whether email is the contact of any restaurant.
func (c *Catalog) IsOwnerEmail(email string) bool {
	return len(c.OwnedBy(email)) > 0
}
