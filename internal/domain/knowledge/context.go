package knowledge

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// Limits for stored context records.
const (
	MaxIDLength   = 256
	MaxBodySize   = 163840 // 160KB
	MaxTagsPerSet = 64
)

// Status is the lifecycle tag of a context record.
type Status string

// Status values.
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Attrs is the mutable input used to build a Context.
type Attrs struct {
	ID            string
	TenantID      string
	Title         string
	Body          string
	Instruction   string
	Keywords      []string
	Location      *geo.Point
	IntentScopes  []string
	IntentActions []string
	Categories    []string
	Status        Status
	UpdatedAt     time.Time
}

// Context is a tenant-scoped knowledge record (immutable value object).
type Context struct {
	id            string
	tenantID      string
	title         string
	body          string
	instruction   string
	keywords      []string
	embedding     []float32
	location      *geo.Point
	intentScopes  []string
	intentActions []string
	categories    []string
	status        Status
	updatedAt     time.Time
}

// New validates attrs and creates a Context without an embedding.
func New(a Attrs) (Context, error) {
	if a.TenantID == "" {
		return Context{}, fmt.Errorf("tenant id is required")
	}
	if a.ID == "" || len(a.ID) > MaxIDLength || !idRegex.MatchString(a.ID) {
		return Context{}, fmt.Errorf("context id must match %s and be 1-%d chars", idRegex, MaxIDLength)
	}
	if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Body) == "" {
		return Context{}, fmt.Errorf("title or body is required")
	}
	if len(a.Body) > MaxBodySize {
		return Context{}, fmt.Errorf("body too large (max %d bytes)", MaxBodySize)
	}
	if a.Location != nil {
		if err := a.Location.Validate(); err != nil {
			return Context{}, fmt.Errorf("location: %w", err)
		}
	}
	for name, set := range map[string][]string{
		"intent_scopes": a.IntentScopes, "intent_actions": a.IntentActions, "categories": a.Categories,
	} {
		if len(set) > MaxTagsPerSet {
			return Context{}, fmt.Errorf("too many %s (max %d)", name, MaxTagsPerSet)
		}
	}
	switch a.Status {
	case "":
		a.Status = StatusActive
	case StatusActive, StatusArchived:
	default:
		return Context{}, fmt.Errorf("unknown status %q", a.Status)
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	return Reconstruct(a, nil), nil
}

// Reconstruct creates a Context without validation (storage hydration).
func Reconstruct(a Attrs, embedding []float32) Context {
	var loc *geo.Point
	if a.Location != nil {
		p := *a.Location
		loc = &p
	}
	return Context{
		id:            a.ID,
		tenantID:      a.TenantID,
		title:         a.Title,
		body:          a.Body,
		instruction:   a.Instruction,
		keywords:      slices.Clone(a.Keywords),
		embedding:     embedding,
		location:      loc,
		intentScopes:  dedupe(a.IntentScopes),
		intentActions: dedupe(a.IntentActions),
		categories:    dedupe(a.Categories),
		status:        a.Status,
		updatedAt:     a.UpdatedAt,
	}
}

// WithEmbedding returns a copy carrying the given vector.
func (c Context) WithEmbedding(v []float32) Context {
	c.embedding = slices.Clone(v)
	return c
}

// ID returns the record identifier (unique within tenant).
func (c *Context) ID() string { return c.id }

// TenantID returns the isolation boundary.
func (c *Context) TenantID() string { return c.tenantID }

// Title returns the title text.
func (c *Context) Title() string { return c.title }

// Body returns the body text.
func (c *Context) Body() string { return c.body }

// Instruction returns the optional instruction text.
func (c *Context) Instruction() string { return c.instruction }

// Keywords returns the ordered keyword list.
func (c *Context) Keywords() []string { return c.keywords }

// Embedding returns the vector, nil until embedded.
func (c *Context) Embedding() []float32 { return c.embedding }

// HasEmbedding reports whether the record takes part in vector queries.
func (c *Context) HasEmbedding() bool { return len(c.embedding) > 0 }

// Location returns the coordinates, nil when the record is not a place.
func (c *Context) Location() *geo.Point { return c.location }

// IntentScopes returns the scope tags.
func (c *Context) IntentScopes() []string { return c.intentScopes }

// IntentActions returns the action tags.
func (c *Context) IntentActions() []string { return c.intentActions }

// Categories returns the category tags.
func (c *Context) Categories() []string { return c.categories }

// Status returns the lifecycle tag.
func (c *Context) Status() Status { return c.status }

// UpdatedAt returns the last modification time.
func (c *Context) UpdatedAt() time.Time { return c.updatedAt }

// Attrs returns the record as editable attributes.
func (c *Context) Attrs() Attrs {
	return Attrs{
		ID:            c.id,
		TenantID:      c.tenantID,
		Title:         c.title,
		Body:          c.body,
		Instruction:   c.instruction,
		Keywords:      slices.Clone(c.keywords),
		Location:      c.location,
		IntentScopes:  slices.Clone(c.intentScopes),
		IntentActions: slices.Clone(c.intentActions),
		Categories:    slices.Clone(c.categories),
		Status:        c.status,
		UpdatedAt:     c.updatedAt,
	}
}

// EmbeddingInput builds the text that gets vectorized for a record.
// Sections are emitted in a fixed order and empty ones are omitted.
func EmbeddingInput(c *Context) string {
	var sections []string
	if t := strings.TrimSpace(c.title); t != "" {
		sections = append(sections, "Title: "+t)
	}
	var kws []string
	for _, k := range c.keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	if len(kws) > 0 {
		sections = append(sections, "Keywords: "+strings.Join(kws, ", "))
	}
	if b := strings.TrimSpace(c.body); b != "" {
		sections = append(sections, "Body: "+b)
	}
	return strings.Join(sections, "\n")
}

// Fold lowercases text for case-insensitive substring matching.
func Fold(s string) string {
	return strings.ToLower(s)
}

// SearchText is the folded title and body used by substring and n-gram matching.
func SearchText(c *Context) string {
	return Fold(c.title + "\n" + c.body)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
