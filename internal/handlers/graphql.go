package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	graphql "github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"

	"github.com/example/stagelink/internal/middleware"
	"github.com/example/stagelink/internal/session"
	"github.com/example/stagelink/internal/token"
)

type ctxKey int

const (
	claimsCtxKey ctxKey = iota
	tokenCtxKey
)

// WithAuth stores verified claims and the raw bearer token on the context
// for resolvers.
func WithAuth(ctx context.Context, claims *token.Claims, rawToken string) context.Context {
	ctx = context.WithValue(ctx, claimsCtxKey, claims)
	return context.WithValue(ctx, tokenCtxKey, rawToken)
}

func claimsFrom(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(*token.Claims)
	return claims, ok
}

func rawTokenFrom(ctx context.Context) string {
	raw, _ := ctx.Value(tokenCtxKey).(string)
	return raw
}

// GraphQLHandler serves the GraphQL endpoint by executing queries against
// the parsed schema inside a fiber handler.
type GraphQLHandler struct {
	schema *graphql.Schema
	log    *zap.SugaredLogger
}

// NewGraphQLHandler parses the schema against the resolver root.
func NewGraphQLHandler(mgr *session.Manager, log *zap.SugaredLogger) *GraphQLHandler {
	schema := graphql.MustParseSchema(schemaString, &Resolver{mgr: mgr}, graphql.UseFieldResolvers())
	return &GraphQLHandler{schema: schema, log: log}
}

type graphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Serve executes one GraphQL request.
func (h *GraphQLHandler) Serve(c *fiber.Ctx) error {
	var req graphqlRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if claims, ok := middleware.CurrentClaims(c); ok {
		ctx = WithAuth(ctx, claims, middleware.CurrentToken(c))
	}

	resp := h.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	h.sanitize(resp)
	return c.JSON(resp)
}

// sanitize logs unexpected resolver failures and replaces their message so
// infrastructure details never reach clients. Domain errors pass through
// untouched.
func (h *GraphQLHandler) sanitize(resp *graphql.Response) {
	for _, qerr := range resp.Errors {
		if qerr.ResolverError == nil || session.IsDomainError(qerr.ResolverError) {
			continue
		}
		h.log.Errorw("resolver failure", "path", qerr.Path, "error", qerr.ResolverError)
		qerr.Message = "internal server error"
	}
}
