package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// maxRequestBody bounds the GraphQL request bodies read for analysis.
const maxRequestBody = 1 << 20

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// Operation summarizes the GraphQL operation of a request for logs, spans
// and metrics. It is derived once per request and never blocks execution:
// parse failures are left to the GraphQL handler to report.
type Operation struct {
	Name           string
	Type           string
	Hash           string
	FieldCount     int
	SelectionDepth int
	VariableCount  int
}

type operationKey struct{}

// WithOperation stores op in ctx.
func WithOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFromContext returns the analyzed operation, or nil.
func OperationFromContext(ctx context.Context) *Operation {
	op, _ := ctx.Value(operationKey{}).(*Operation)
	return op
}

// GraphQLRequestAnalysisMiddleware reads the GraphQL request once and stores
// its Operation in the request context. The body is restored for the next
// handler.
func GraphQLRequestAnalysisMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, operationName := extractGraphQLRequest(r)
			op, err := analyzeOperation(query, operationName)
			if err != nil || op == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperation(r.Context(), op)))
		})
	}
}

func extractGraphQLRequest(r *http.Request) (string, string) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), r.URL.Query().Get("operationName")
	}
	var payload graphQLRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

func analyzeOperation(query, operationName string) (*Operation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return nil, err
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			if d.Name != nil {
				fragments[d.Name.Value] = d
			}
		case *ast.OperationDefinition:
			operations = append(operations, d)
		}
	}

	target, err := selectOperation(operations, operationName)
	if err != nil {
		return nil, err
	}

	op := &Operation{
		Type:          string(target.Operation),
		VariableCount: len(target.VariableDefinitions),
		Hash:          fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(strings.Fields(query), " "))),
	}
	if target.Name != nil {
		op.Name = target.Name.Value
	}
	op.FieldCount, op.SelectionDepth = countFieldsAndDepth(target.SelectionSet, fragments, 1, map[string]bool{})
	return op, nil
}

func selectOperation(operations []*ast.OperationDefinition, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == name {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	switch len(operations) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return operations[0], nil
	}
	return nil, fmt.Errorf("operationName is required when request has multiple operations")
}

// countFieldsAndDepth walks a selection set. Fragments are expanded once and
// cyclic spreads are skipped.
func countFieldsAndDepth(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, depth int, expanded map[string]bool) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	visit := func(nested *ast.SelectionSet, nestedDepth int) {
		n, d := countFieldsAndDepth(nested, fragments, nestedDepth, expanded)
		fields += n
		if d > maxDepth {
			maxDepth = d
		}
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				visit(sel.SelectionSet, depth+1)
			}
		case *ast.InlineFragment:
			visit(sel.SelectionSet, depth)
		case *ast.FragmentSpread:
			name := sel.Name.Value
			if expanded[name] {
				continue
			}
			expanded[name] = true
			if frag, ok := fragments[name]; ok {
				visit(frag.SelectionSet, depth)
			}
		}
	}
	return fields, maxDepth
}
