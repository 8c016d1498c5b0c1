package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rating bounds for a mood entry
const (
	MinRating = 1
	MaxRating = 5
)

var (
	// ErrInvalidRating is returned when a rating falls outside MinRating..MaxRating
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrBlankTagName is returned when a tag name is empty after trimming
	ErrBlankTagName = errors.New("tag name is required")
	// ErrInvalidCategory is returned for categories outside activity, place and event
	ErrInvalidCategory = errors.New("invalid tag category")
	// ErrTagIntegrity signals a tag reported as duplicate that cannot be found afterwards
	ErrTagIntegrity = errors.New("tag integrity violation")
	// ErrNotFound is returned when a lookup matches nothing
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousID is returned when an id prefix matches more than one entry
	ErrAmbiguousID = errors.New("ambiguous id prefix")
	// ErrInvalidRange is returned when a time range ends before it starts
	ErrInvalidRange = errors.New("invalid time range")
	// ErrInvalidFilter is returned for entry filter expressions that cannot be used
	ErrInvalidFilter = errors.New("invalid filter expression")
)

// Category classifies a tag
type Category string

const (
	CategoryActivity Category = "activity"
	CategoryPlace    Category = "place"
	CategoryEvent    Category = "event"
	// CategoryPerson is reserved and not accepted as input.
	CategoryPerson Category = "person"
)

// Categories lists the categories accepted for new tags, in display order
var Categories = []Category{CategoryActivity, CategoryPlace, CategoryEvent}

// ParseCategory maps user input to a Category, ignoring case and surrounding space
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// Validate reports whether c may be used for a new tag
func (c Category) Validate() error {
	switch c {
	case CategoryActivity, CategoryPlace, CategoryEvent:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidCategory, string(c))
}

// MoodEntry is a single mood record. Timestamp carries the zone offset
// that was in effect when the entry was created.
type MoodEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Rating    int       `json:"mood_rating"`
	Notes     *string   `json:"notes,omitempty"`
}

// Tag is a reusable label in one category
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryTag links an entry to a tag
type EntryTag struct {
	EntryID string `json:"entry_id"`
	TagID   string `json:"tag_id"`
}

// EntryWithTags pairs an entry with its associated tags
type EntryWithTags struct {
	MoodEntry
	Tags []Tag `json:"tags"`
}

// TagInput is a candidate tag before reconciliation
type TagInput struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

// Normalize trims the name and validates both fields
func (t TagInput) Normalize() (TagInput, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return TagInput{}, ErrBlankTagName
	}
	if err := t.Category.Validate(); err != nil {
		return TagInput{}, err
	}
	return TagInput{Name: name, Category: t.Category}, nil
}

// NewEntry holds everything needed to persist an entry
type NewEntry struct {
	Timestamp time.Time
	Rating    int
	Notes     *string
	Tags      []TagInput
}

// Validate checks the rating and every tag
func (n NewEntry) Validate() error {
	if err := ValidateRating(n.Rating); err != nil {
		return err
	}
	for _, t := range n.Tags {
		if _, err := t.Normalize(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRating rejects ratings outside MinRating..MaxRating
func ValidateRating(r int) error {
	if r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, r)
	}
	return nil
}

// IsValidation reports whether err is an input validation failure
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRating) ||
		errors.Is(err, ErrBlankTagName) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidFilter)
}

// TagNames returns the tag names of e in order, optionally restricted to one category
func (e EntryWithTags) TagNames(only ...Category) []string {
	names := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		if len(only) > 0 && t.Category != only[0] {
			continue
		}
		names = append(names, t.Name)
	}
	return names
}
