// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"strings"

	"bookswap/internal/models"
	"bookswap/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// DemoPassword is the password every seeded member can log in with.
const DemoPassword = "password123"

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogEntry is one book in the embedded demo catalog.
type CatalogEntry struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	Genre       string `yaml:"genre"`
	Year        int    `yaml:"year"`
	Pages       int    `yaml:"pages"`
	Language    string `yaml:"language"`
	Description string `yaml:"description"`
}

// LoadCatalog parses the embedded demo catalog.
func LoadCatalog() ([]CatalogEntry, error) {
	var doc struct {
		Books []CatalogEntry `yaml:"books"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Books) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	return doc.Books, nil
}

var (
	cities = []string{
		"Lisbon", "Porto", "Braga", "Coimbra", "Madrid", "Barcelona", "Paris", "Lyon",
		"Berlin", "Hamburg", "Amsterdam", "Dublin", "London", "Manchester", "Edinburgh",
	}
	conditions = []string{
		models.ConditionNew, models.ConditionLikeNew, models.ConditionGood,
		models.ConditionGood, models.ConditionFair, models.ConditionPoor,
	}
)

// Factory builds domain entities from gofakeit data. A fixed seed makes the
// generated data reproducible.
type Factory struct {
	db     *gorm.DB
	faker  *gofakeit.Faker
	rng    *rand.Rand
	hashed string
}

// NewFactory creates a new Factory bound to db. skipBcrypt stores a cheap
// hash, which is fine for tests but still verifies against DemoPassword.
func NewFactory(db *gorm.DB, randSeed int64, skipBcrypt bool) (*Factory, error) {
	cost := bcrypt.DefaultCost
	if skipBcrypt {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	// #nosec G404: acceptable for seeding
	return &Factory{
		db:     db,
		faker:  gofakeit.New(randSeed),
		rng:    rand.New(rand.NewSource(randSeed)),
		hashed: string(hashed),
	}, nil
}

// BuildUser returns an unsaved member with a unique-looking username.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	first, last := f.faker.FirstName(), f.faker.LastName()
	base := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, strings.ToLower(first+"_"+last))
	if len(base) > 25 {
		base = base[:25]
	}
	username := fmt.Sprintf("%s%d", base, f.faker.Number(10, 9999))

	user := &models.User{
		Username: username,
		Email:    username + "@bookswap.test",
		Password: f.hashed,
		FullName: first + " " + last,
		Location: cities[f.rng.Intn(len(cities))],
		About:    f.faker.Sentence(12),
		Role:     models.RoleUser,
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser constructs and persists a member.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BookInput turns a catalog entry into a listing with a random condition.
// Roughly one in four listings is put up for sale.
func (f *Factory) BookInput(entry CatalogEntry) validation.BookInput {
	in := validation.BookInput{
		Title:       entry.Title,
		Author:      entry.Author,
		Genre:       entry.Genre,
		Condition:   conditions[f.rng.Intn(len(conditions))],
		Description: entry.Description,
		Language:    entry.Language,
		ListingType: models.ListingSwap,
	}
	if entry.Year != 0 {
		year := entry.Year
		in.PublishedYear = &year
	}
	if entry.Pages != 0 {
		pages := entry.Pages
		in.Pages = &pages
	}
	if f.rng.Intn(4) == 0 {
		price := float64(f.faker.Number(300, 2500)) / 100
		in.ListingType = models.ListingSell
		in.Price = &price
	}
	return in
}

// Review returns a short review matching score.
func (f *Factory) Review(score int) string {
	switch {
	case score >= 4:
		return fmt.Sprintf("Smooth swap, book was exactly as described. %s", f.faker.Sentence(6))
	case score == 3:
		return "Took a while to ship but arrived fine."
	default:
		return "Book was in worse condition than listed."
	}
}

// Address returns a shipping address for buy requests.
func (f *Factory) Address() string {
	a := f.faker.Address()
	return fmt.Sprintf("%s, %s %s", a.Street, a.Zip, a.City)
}

// Intn exposes the factory's deterministic source to the seeder.
func (f *Factory) Intn(n int) int {
	return f.rng.Intn(n)
}
