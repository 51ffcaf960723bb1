package zql

import (
	"sort"
	"strings"

	"github.com/zteradb/zteradb-go/config"
	zterr "github.com/zteradb/zteradb-go/errors"
)

// QueryType selects the operation a query performs.
type QueryType int

const (
	QueryNone QueryType = iota
	QueryInsert
	QuerySelect
	QueryUpdate
	QueryDelete
)

func (qt QueryType) String() string {
	switch qt {
	case QueryInsert:
		return "INSERT"
	case QuerySelect:
		return "SELECT"
	case QueryUpdate:
		return "UPDATE"
	case QueryDelete:
		return "DELETE"
	default:
		return "NONE"
	}
}

// reservedFields are internal names that can never be used as user field
// keys. Any name with the "__" prefix is rejected as well.
var reservedFields = map[string]struct{}{
	"__schema_name":       {},
	"__database_id":       {},
	"__query_type":        {},
	"__fields":            {},
	"__filters":           {},
	"__filter_conditions": {},
	"__limit":             {},
	"__sort":              {},
	"__related_fields":    {},
	"__count":             {},
	"__env":               {},
}

// Reserved reports whether name cannot be used as a user field key.
func Reserved(name string) bool {
	if strings.HasPrefix(name, "__") {
		return true
	}
	_, ok := reservedFields[name]
	return ok
}

type sortPair struct {
	field string
	order int
}

type limitRange struct {
	start int
	end   int
}

// Query assembles the wire query document. Setters chain, returning the
// query; the first validation failure sticks and surfaces from Err or
// Generate. A Query is not safe for concurrent mutation and must not be
// modified after being handed to the pool.
type Query struct {
	schemaName string
	databaseID string
	queryType  QueryType
	fieldOrder []string
	fields     map[string]interface{}
	filters    map[string]interface{}
	conditions []interface{}
	sorts      []sortPair
	limit      *limitRange
	related    map[string]*Query
	relOrder   []string
	count      bool
	env        string
	err        error
}

// NewQuery starts a query against the named schema.
func NewQuery(schemaName string) *Query {
	q := &Query{
		fields:  make(map[string]interface{}),
		filters: make(map[string]interface{}),
		related: make(map[string]*Query),
	}
	if schemaName == "" {
		q.err = zterr.Value("schema name must be a non-empty string")
	}
	q.schemaName = schemaName
	return q
}

// Err returns the first validation error recorded while building.
func (q *Query) Err() error {
	return q.err
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Select marks the query as a SELECT.
func (q *Query) Select() *Query {
	q.queryType = QuerySelect
	return q
}

// Insert marks the query as an INSERT.
func (q *Query) Insert() *Query {
	q.queryType = QueryInsert
	return q
}

// Update marks the query as an UPDATE.
func (q *Query) Update() *Query {
	q.queryType = QueryUpdate
	return q
}

// Delete marks the query as a DELETE.
func (q *Query) Delete() *Query {
	q.queryType = QueryDelete
	return q
}

// SetField sets one user field. Reserved names ("__"-prefixed or in the
// internal list) are rejected.
func (q *Query) SetField(name string, value interface{}) *Query {
	if q.err != nil {
		return q
	}
	if name == "" {
		return q.fail(zterr.Value("field name must be a non-empty string"))
	}
	if Reserved(name) {
		return q.fail(zterr.Value("field name %q is reserved", name))
	}
	if _, exists := q.fields[name]; !exists {
		q.fieldOrder = append(q.fieldOrder, name)
	}
	q.fields[name] = value
	return q
}

// Fields merges a map of user fields, with the same name rules as SetField.
func (q *Query) Fields(m map[string]interface{}) *Query {
	for _, name := range sortedKeys(m) {
		q.SetField(name, m[name])
	}
	return q
}

// Filter merges equality-only field→scalar pairs. Object and array values
// belong in FilterCondition, not here.
func (q *Query) Filter(m map[string]interface{}) *Query {
	if q.err != nil {
		return q
	}
	for _, name := range sortedKeys(m) {
		if name == "" {
			return q.fail(zterr.Value("filter field name must be a non-empty string"))
		}
		switch m[name].(type) {
		case map[string]interface{}, []interface{}:
			return q.fail(zterr.Value("filter value for %q must be a scalar", name))
		}
		q.filters[name] = m[name]
	}
	return q
}

// FilterCondition appends a condition tree's accumulated form to the
// filter-condition list.
func (q *Query) FilterCondition(c *Condition) *Query {
	if q.err != nil {
		return q
	}
	if c == nil {
		return q.fail(zterr.Value("filter condition must not be nil"))
	}
	form, err := c.Encode()
	if err != nil {
		return q.fail(err)
	}
	q.conditions = append(q.conditions, form)
	return q
}

// Sort appends one (field, order) pair. Order must be +1 or -1.
func (q *Query) Sort(field string, order int) *Query {
	if q.err != nil {
		return q
	}
	if field == "" {
		return q.fail(zterr.Value("sort field must be a non-empty string"))
	}
	if order != 1 && order != -1 {
		return q.fail(zterr.Value("sort order for %q must be +1 or -1, got %d", field, order))
	}
	q.sorts = append(q.sorts, sortPair{field: field, order: order})
	return q
}

// Limit restricts results to the half-open row range [start, end).
func (q *Query) Limit(start, end int) *Query {
	if q.err != nil {
		return q
	}
	if start < 0 || end < 0 {
		return q.fail(zterr.Value("limit bounds must be non-negative, got [%d, %d)", start, end))
	}
	if start >= end {
		return q.fail(zterr.Value("limit start %d must be less than end %d", start, end))
	}
	q.limit = &limitRange{start: start, end: end}
	return q
}

// Count asks the server for a row count instead of rows. Latches on.
func (q *Query) Count() *Query {
	q.count = true
	return q
}

// Related attaches a named sub-query whose results are joined into each row.
func (q *Query) Related(name string, sub *Query) *Query {
	if q.err != nil {
		return q
	}
	if name == "" {
		return q.fail(zterr.Value("related field name must be a non-empty string"))
	}
	if sub == nil {
		return q.fail(zterr.Value("related field %q must carry a query", name))
	}
	if sub.err != nil {
		return q.fail(sub.err)
	}
	if _, exists := q.related[name]; !exists {
		q.relOrder = append(q.relOrder, name)
	}
	q.related[name] = sub
	return q
}

// SetEnv routes the query to a specific environment.
func (q *Query) SetEnv(env string) *Query {
	if q.err != nil {
		return q
	}
	if !config.ValidEnv(env) {
		return q.fail(zterr.Value("env must be one of dev, staging, qa, prod; got %q", env))
	}
	q.env = env
	return q
}

// SetDatabaseID overrides the database the query runs against. The pool
// fills this from its config when unset.
func (q *Query) SetDatabaseID(id string) *Query {
	if q.err != nil {
		return q
	}
	if id == "" {
		return q.fail(zterr.Value("database id must be a non-empty string"))
	}
	q.databaseID = id
	return q
}

// DatabaseID returns the query's database override, if any.
func (q *Query) DatabaseID() string {
	return q.databaseID
}

// Env returns the query's environment override, if any.
func (q *Query) Env() string {
	return q.env
}

// Generate produces the query serialization document. It fails if any setter
// recorded an error or if no query type was chosen.
func (q *Query) Generate() (map[string]interface{}, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.queryType == QueryNone {
		return nil, zterr.Value("query type must be set before generating")
	}

	fields := make(map[string]interface{}, len(q.fields))
	for _, name := range q.fieldOrder {
		fields[name] = q.fields[name]
	}

	filters := make(map[string]interface{}, len(q.filters))
	for name, value := range q.filters {
		filters[name] = value
	}

	conditions := make([]interface{}, len(q.conditions))
	copy(conditions, q.conditions)

	sorts := make(map[string]interface{}, len(q.sorts))
	for _, s := range q.sorts {
		sorts[s.field] = s.order
	}

	related := make(map[string]interface{}, len(q.related))
	for _, name := range q.relOrder {
		sub, err := q.related[name].Generate()
		if err != nil {
			return nil, err
		}
		related[name] = sub
	}

	var limit interface{}
	if q.limit != nil {
		limit = []interface{}{q.limit.start, q.limit.end}
	}

	return map[string]interface{}{
		"db":  q.databaseID,
		"sh":  q.schemaName,
		"qt":  int(q.queryType),
		"fl":  fields,
		"fi":  filters,
		"fc":  conditions,
		"rf":  related,
		"st":  sorts,
		"lt":  limit,
		"cnt": q.count,
		"env": q.env,
	}, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic merge order; Go map iteration is randomized.
	sort.Strings(keys)
	return keys
}
