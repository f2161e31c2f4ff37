package filter

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
)

// MaxConditions is the maximum number of tag conditions per expression.
const MaxConditions = 32

// Field names a tag set of a context record. The value doubles as the storage attribute name.
type Field string

// Filterable tag sets.
const (
	FieldIntentScopes  Field = "intent_scopes"
	FieldIntentActions Field = "intent_actions"
	FieldCategories    Field = "categories"
)

// IsValid reports whether f is a known tag set.
func (f Field) IsValid() bool {
	return f == FieldIntentScopes || f == FieldIntentActions || f == FieldCategories
}

// Condition is an exact-membership predicate: value ∈ record[field].
type Condition struct {
	field Field
	value string
}

// Field returns the tag set name.
func (c Condition) Field() Field { return c.field }

// Value returns the required member.
func (c Condition) Value() string { return c.value }

// Radius is a hard great-circle distance predicate.
type Radius struct {
	center geo.Point
	km     float64
}

// Center returns the query point.
func (r Radius) Center() geo.Point { return r.center }

// Km returns the maximum distance in kilometres.
func (r Radius) Km() float64 { return r.km }

// Expression is an AND of a mandatory tenant predicate, tag conditions and an optional radius.
// It can only be obtained from a Builder, so every compiled query is tenant scoped.
type Expression struct {
	tenant     string
	conditions []Condition
	radius     *Radius
}

// Tenant returns the tenant predicate value.
func (e Expression) Tenant() string { return e.tenant }

// Conditions returns the tag predicates.
func (e Expression) Conditions() []Condition { return e.conditions }

// Radius returns the geo predicate, nil when absent.
func (e Expression) Radius() *Radius { return e.radius }

// IsZero reports whether the expression was never built.
func (e Expression) IsZero() bool { return e.tenant == "" }

// Builder composes an Expression. Errors are collected and reported by Build.
type Builder struct {
	expr Expression
	err  error
}

// ForTenant starts an expression scoped to tenantID.
func ForTenant(tenantID string) *Builder {
	b := &Builder{expr: Expression{tenant: tenantID}}
	if tenantID == "" {
		b.err = fmt.Errorf("tenant predicate is required")
	}
	return b
}

// Match adds value ∈ field. An empty value is ignored so optional filters can be chained.
func (b *Builder) Match(field Field, value string) *Builder {
	if b.err != nil || value == "" {
		return b
	}
	if !field.IsValid() {
		b.err = fmt.Errorf("unknown filter field %q", field)
		return b
	}
	if len(b.expr.conditions) >= MaxConditions {
		b.err = fmt.Errorf("too many conditions (max %d)", MaxConditions)
		return b
	}
	b.expr.conditions = append(b.expr.conditions, Condition{field: field, value: value})
	return b
}

// Within restricts results to records no further than km from center.
func (b *Builder) Within(center geo.Point, km float64) *Builder {
	if b.err != nil {
		return b
	}
	if err := center.Validate(); err != nil {
		b.err = err
		return b
	}
	if km <= 0 || math.IsNaN(km) || math.IsInf(km, 0) {
		b.err = fmt.Errorf("radius must be a positive number of km, got %v", km)
		return b
	}
	b.expr.radius = &Radius{center: center, km: km}
	return b
}

// Build returns the expression or the first error encountered.
func (b *Builder) Build() (Expression, error) {
	if b.err != nil {
		return Expression{}, b.err
	}
	return b.expr, nil
}
