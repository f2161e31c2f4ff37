package corpus

import (
	"github.com/kailas-cloud/ctxdex/internal/db"
	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/filter"
)

// Hash field names. Tag set fields reuse the filter field names so compiled
// predicates address them directly.
const (
	fieldID            = "id"
	fieldTitle         = "title"
	fieldBody          = "body"
	fieldInstruction   = "instruction"
	fieldKeywords      = "keywords"
	fieldIntentScopes  = string(filter.FieldIntentScopes)
	fieldIntentActions = string(filter.FieldIntentActions)
	fieldCategories    = string(filter.FieldCategories)
	fieldStatus        = "status"
	fieldUpdatedAt     = "updated_at"
	fieldEmbedding     = "embedding"
)

// tagSeparator splits tag sets stored in a single hash field.
const tagSeparator = "|"

// textFields are searched by the full-text, substring and n-gram queries.
var textFields = []string{fieldTitle, fieldBody}

// returnFields hydrate a knowledge.Context; the vector is never read back.
var returnFields = []string{
	fieldID, db.FieldTenant, fieldTitle, fieldBody, fieldInstruction, fieldKeywords,
	db.FieldLocation, fieldIntentScopes, fieldIntentActions, fieldCategories,
	fieldStatus, fieldUpdatedAt,
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

func keyPrefix() string {
	return domain.KeyPrefix + "ctx:"
}

func archivePrefix() string {
	return domain.KeyPrefix + "archive:"
}

// IndexName is the FT index over every active context of every tenant.
func IndexName() string {
	return domain.KeyPrefix + "ctx:idx"
}

func contextKey(tenantID, id string) string {
	return keyPrefix() + tenantID + ":" + id
}

// archiveKey lives outside the indexed prefix, so archived records never match a query.
func archiveKey(tenantID, id string) string {
	return archivePrefix() + tenantID + ":" + id
}

// buildIndex describes the corpus schema: tenant and tag sets as TAG, title/body as TEXT,
// location as GEO, updated_at sortable for recency order, and a cosine HNSW vector.
func buildIndex(vectorDim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(IndexName()).
		Prefix(keyPrefix()).
		Tag(db.FieldTenant).
		TagWithOpts(fieldIntentScopes, tagSeparator, false).
		TagWithOpts(fieldIntentActions, tagSeparator, false).
		TagWithOpts(fieldCategories, tagSeparator, false).
		Tag(fieldStatus).
		Text(fieldTitle).
		Text(fieldBody).
		Geo(db.FieldLocation).
		SortableNumeric(fieldUpdatedAt).
		VectorHNSW(fieldEmbedding, vectorDim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
}
