package graph

import (
	"context"
	"errors"
	"log/slog"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/querygate"
)

// Request is one GraphQL operation as sent by a client, over HTTP or in a
// graphql-ws "start" payload.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// Executor runs documents against the schema, checking them with the query
// gate first. The caller must attach an *auth.RequestContext to ctx.
type Executor struct {
	schema *graphql.Schema
	gate   *querygate.Gate
	logger *slog.Logger
}

func NewExecutor(schema *graphql.Schema, gate *querygate.Gate, logger *slog.Logger) *Executor {
	return &Executor{schema: schema, gate: gate, logger: logger}
}

// Schema returns the executable schema.
func (e *Executor) Schema() *graphql.Schema {
	return e.schema
}

// Execute runs a query or mutation.
//
// A non-nil error means the document was refused before execution (query
// gate, or a subscription sent over plain HTTP). The returned result then
// holds exactly that one error and no data, and the HTTP layer answers
// 400. Resolver failures are not errors here: they are reported per field
// inside the result.
func (e *Executor) Execute(ctx context.Context, req Request) (*graphql.Result, error) {
	if OperationType(req) == ast.OperationTypeSubscription {
		err := apperror.ValidationFailed("query", "subscriptions are only served over the graphql-ws WebSocket transport")
		return rejected(err), err
	}
	if err := e.check(req); err != nil {
		return rejected(err), err
	}

	return graphql.Do(graphql.Params{
		Schema:         *e.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	}), nil
}

// Subscribe runs an operation that may produce many results. Subscriptions
// stream until ctx ends; queries and mutations yield one result and the
// channel closes. The caller must drain the channel until it is closed.
func (e *Executor) Subscribe(ctx context.Context, req Request) (<-chan *graphql.Result, error) {
	if OperationType(req) != ast.OperationTypeSubscription {
		res, err := e.Execute(ctx, req)
		if err != nil {
			return nil, err
		}
		ch := make(chan *graphql.Result, 1)
		ch <- res
		close(ch)
		return ch, nil
	}

	if err := e.check(req); err != nil {
		return nil, err
	}
	return graphql.Subscribe(graphql.Params{
		Schema:         *e.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	}), nil
}

func (e *Executor) check(req Request) error {
	report, err := e.gate.Check(e.schema, req.Query, req.OperationName, req.Variables)
	if err != nil {
		e.logger.Warn("query rejected",
			slog.String("operation", req.OperationName),
			slog.String("reason", err.Error()),
		)
		return err
	}
	if report != nil {
		e.logger.Debug("query accepted",
			slog.Int("depth", report.Depth),
			slog.Int("complexity", report.Complexity),
		)
	}
	return nil
}

// OperationType returns "query", "mutation" or "subscription" for the
// operation req would run, or "" when the document doesn't parse or names
// no such operation.
func OperationType(req Request) string {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return ""
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if req.OperationName == "" || (op.Name != nil && op.Name.Value == req.OperationName) {
			return op.Operation
		}
	}
	return ""
}

// rejected builds the single-error, no-data result for a refused document.
func rejected(err error) *graphql.Result {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.From(err)
	}
	return &graphql.Result{
		Errors: []gqlerrors.FormattedError{{
			Message:    appErr.Message,
			Extensions: appErr.Extensions(),
		}},
	}
}
