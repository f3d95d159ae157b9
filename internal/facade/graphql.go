package facade

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/mnohosten/agentstate/internal/storage"
)

// jsonScalar mirrors the teacher's pkg/graphql JSONScalar: an opaque
// passthrough scalar for a StateRecord's arbitrary structured value.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary structured value (null, bool, number, string, list, or object)",
	Serialize:   func(value interface{}) interface{} { return value },
	ParseValue:  func(value interface{}) interface{} { return value },
	ParseLiteral: func(valueAST ast.Value) interface{} {
		return nil
	},
})

var stateRecordType = graphql.NewObject(graphql.ObjectConfig{
	Name: "StateRecord",
	Fields: graphql.Fields{
		"namespace": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"agentId":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"key":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"value":     &graphql.Field{Type: jsonScalar},
		"version":   &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"commitTs":  &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"deleted":   &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
	},
})

func stateRecordFields(rec storage.StateRecord) map[string]interface{} {
	return map[string]interface{}{
		"namespace": rec.ID.Namespace,
		"agentId":   rec.ID.AgentID,
		"key":       rec.ID.Key,
		"value":     rec.Value.ToNative(),
		"version":   rec.Version,
		"commitTs":  rec.CommitTs,
		"deleted":   rec.Deleted,
	}
}

// buildGraphQLSchema defines the read-only query surface: GetState,
// ListKeys, ScanPrefix (spec §6 RPCs, re-exposed as a GraphQL facade,
// opt-in via Config.EnableGraphQL like the teacher's pkg/graphql).
func (s *Server) buildGraphQLSchema() (graphql.Schema, error) {
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"getState": &graphql.Field{
				Type: stateRecordType,
				Args: graphql.FieldConfigArgument{
					"namespace": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"agentId":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"key":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := storage.RecordID{
						Namespace: p.Args["namespace"].(string),
						AgentID:   p.Args["agentId"].(string),
						Key:       p.Args["key"].(string),
					}
					rec, ok, err := s.engine.GetState(id)
					if err != nil || !ok {
						return nil, err
					}
					return stateRecordFields(rec), nil
				},
			},
			"listKeys": &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Args: graphql.FieldConfigArgument{
					"namespace": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"agentId":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return s.engine.ListKeys(p.Args["namespace"].(string), p.Args["agentId"].(string))
				},
			},
			"scanPrefix": &graphql.Field{
				Type: graphql.NewList(stateRecordType),
				Args: graphql.FieldConfigArgument{
					"namespace": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"agentId":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"prefix":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					prefix, _ := p.Args["prefix"].(string)
					recs, err := s.engine.ScanPrefix(p.Args["namespace"].(string), p.Args["agentId"].(string), prefix)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, len(recs))
					for i, rec := range recs {
						out[i] = stateRecordFields(rec)
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

func (s *Server) setupGraphQLRoutes() {
	schema, err := s.buildGraphQLSchema()
	if err != nil {
		log.Error().Err(err).Msg("failed to build GraphQL schema, GraphQL facade disabled")
		return
	}

	s.router.Post("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
			return
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        r.Context(),
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	})

	log.Info().Msg("GraphQL facade enabled at /graphql")
}
