// Package querygate rejects GraphQL documents that are too deep or too
// expensive before any resolver runs.
//
// Both limits are computed statically from the parsed document and the
// schema, so a rejected query never reaches the store.
//
// DEPTH:
// A field's depth is the number of fields above it. In
//
//	{ allPhotos { postedBy { name } } }
//
// allPhotos is at depth 0, postedBy at 1 and name at 2, so the document
// has depth 2. Introspection fields (__schema, __type, ...) are skipped
// together with everything below them, so GraphiQL's own schema query is
// never rejected.
//
// COMPLEXITY:
//   - a leaf (scalar or enum) field costs 1
//   - an object field costs nothing itself, only its children count
//   - a list field multiplies its cost by its integer "count" or "first"
//     argument, or by DefaultListFactor when it has neither
//
// Named and inline fragments are expanded in place.
package querygate

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"github.com/sakif/photo-share/internal/apperror"
)

const (
	DefaultMaxDepth      = 5
	DefaultMaxComplexity = 1000
	// DefaultListFactor is the assumed length of a list field with no
	// count/first argument.
	DefaultListFactor = 10
)

// listSizeArgs are the argument names that bound a list field's length.
var listSizeArgs = []string{"count", "first"}

// Report describes a document that passed the gate.
type Report struct {
	Depth      int
	Complexity int
}

// Gate holds the configured limits. The zero value is not useful; use New.
type Gate struct {
	maxDepth      int
	maxComplexity int
}

// New creates a Gate. Non-positive limits fall back to the defaults.
func New(maxDepth, maxComplexity int) *Gate {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxComplexity <= 0 {
		maxComplexity = DefaultMaxComplexity
	}
	return &Gate{maxDepth: maxDepth, maxComplexity: maxComplexity}
}

// Check measures the operation(s) in query that would execute. When
// operationName is empty every operation in the document is measured.
//
// A document that doesn't parse passes with a nil report; the executor
// reports the syntax error in the usual GraphQL shape.
//
// The walk is linear in the size of the document: each named fragment is
// measured once and reused at every spread, and costs saturate just above
// the complexity limit. A document built to blow up under expansion costs
// the gate no more than it costs to parse.
func (g *Gate) Check(schema *graphql.Schema, query, operationName string, variables map[string]interface{}) (*Report, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return nil, nil
	}

	w := &walker{
		schema:    schema,
		fragments: make(map[string]*ast.FragmentDefinition),
		measured:  make(map[string]measure),
		visiting:  make(map[string]bool),
		variables: variables,
		ceiling:   g.maxComplexity + 1,
	}
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			w.fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			if operationName == "" || (d.Name != nil && d.Name.Value == operationName) {
				ops = append(ops, d)
			}
		}
	}

	report := &Report{}
	for _, op := range ops {
		m := w.selectionSet(op.SelectionSet, w.rootType(op.Operation))
		report.Depth = max(report.Depth, m.depth)
		report.Complexity = max(report.Complexity, m.cost)
	}

	if report.Depth > g.maxDepth {
		return nil, apperror.QueryTooDeep(report.Depth, g.maxDepth)
	}
	if report.Complexity >= w.ceiling {
		return nil, apperror.QueryTooComplex(g.maxComplexity)
	}
	return report, nil
}

// measure is the cost of a selection set and the depth of its deepest
// field, relative to the set: fields directly in the set are at depth 0.
// A set with no countable field has depth -1.
type measure struct {
	cost  int
	depth int
}

var empty = measure{depth: -1}

type walker struct {
	schema    *graphql.Schema
	fragments map[string]*ast.FragmentDefinition
	// measured caches fragments by name. Depth is relative, so the same
	// measure holds at every spread site.
	measured map[string]measure
	// visiting holds the fragments being expanded on the current path,
	// which stops cycles.
	visiting  map[string]bool
	variables map[string]interface{}
	// ceiling is the smallest cost that fails the gate. No cost is ever
	// counted past it.
	ceiling int
}

func (w *walker) rootType(operation string) graphql.Type {
	var root *graphql.Object
	switch operation {
	case ast.OperationTypeMutation:
		root = w.schema.MutationType()
	case ast.OperationTypeSubscription:
		root = w.schema.SubscriptionType()
	default:
		root = w.schema.QueryType()
	}
	if root == nil {
		return nil
	}
	return root
}

func (w *walker) selectionSet(set *ast.SelectionSet, parent graphql.Type) measure {
	total := empty
	if set == nil {
		return total
	}
	for _, sel := range set.Selections {
		var m measure
		switch s := sel.(type) {
		case *ast.Field:
			m = w.field(s, parent)
		case *ast.InlineFragment:
			t := parent
			if s.TypeCondition != nil {
				t = w.schema.Type(s.TypeCondition.Name.Value)
			}
			m = w.selectionSet(s.SelectionSet, t)
		case *ast.FragmentSpread:
			m = w.fragment(s.Name.Value)
		}
		total.cost = w.add(total.cost, m.cost)
		total.depth = max(total.depth, m.depth)
		if total.cost >= w.ceiling {
			// Rejected whatever the remaining selections hold.
			break
		}
	}
	return total
}

func (w *walker) fragment(name string) measure {
	if m, ok := w.measured[name]; ok {
		return m
	}
	frag, ok := w.fragments[name]
	if !ok || w.visiting[name] {
		return empty
	}
	w.visiting[name] = true
	m := w.selectionSet(frag.SelectionSet, w.schema.Type(frag.TypeCondition.Name.Value))
	delete(w.visiting, name)
	w.measured[name] = m
	return m
}

func (w *walker) field(f *ast.Field, parent graphql.Type) measure {
	name := f.Name.Value
	if strings.HasPrefix(name, "__") {
		return empty
	}

	var fieldType graphql.Type
	if def, ok := fieldsOf(parent)[name]; ok {
		fieldType = def.Type
	}

	m := measure{cost: 1}
	if f.SelectionSet != nil {
		children := w.selectionSet(f.SelectionSet, graphqlNamed(fieldType))
		m = measure{cost: children.cost, depth: max(0, children.depth+1)}
	}

	if isList(fieldType) {
		m.cost = w.mul(m.cost, w.listFactor(f))
	}
	return m
}

// add and mul saturate at the ceiling, so no argument or fragment chain can
// overflow an int.
func (w *walker) add(a, b int) int {
	return min(a+b, w.ceiling)
}

func (w *walker) mul(a, factor int) int {
	if a == 0 {
		return 0
	}
	if factor >= w.ceiling || a >= w.ceiling/factor+1 {
		return w.ceiling
	}
	return min(a*factor, w.ceiling)
}

// listFactor is the multiplier for a list field.
func (w *walker) listFactor(f *ast.Field) int {
	for _, arg := range f.Arguments {
		if !isListSizeArg(arg.Name.Value) {
			continue
		}
		switch v := arg.Value.(type) {
		case *ast.IntValue:
			if n, err := strconv.Atoi(v.Value); err == nil && n > 0 {
				return n
			}
		case *ast.Variable:
			if n, ok := toInt(w.variables[v.Name.Value]); ok && n > 0 {
				return n
			}
		}
	}
	return DefaultListFactor
}

func isListSizeArg(name string) bool {
	for _, a := range listSizeArgs {
		if a == name {
			return true
		}
	}
	return false
}

// toInt accepts the numeric shapes a decoded variables map can hold.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func fieldsOf(t graphql.Type) graphql.FieldDefinitionMap {
	switch n := graphqlNamed(t).(type) {
	case *graphql.Object:
		return n.Fields()
	case *graphql.Interface:
		return n.Fields()
	}
	return nil
}

func graphqlNamed(t graphql.Type) graphql.Type {
	if t == nil {
		return nil
	}
	n, _ := graphql.GetNamed(t).(graphql.Type)
	return n
}

func isList(t graphql.Type) bool {
	if nn, ok := t.(*graphql.NonNull); ok {
		t = nn.OfType
	}
	_, ok := t.(*graphql.List)
	return ok
}
