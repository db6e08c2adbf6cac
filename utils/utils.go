package utils

import (
	"encoding/json"
	"fmt"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// ParseQuery parses a GraphQL document
func ParseQuery(query string) (*ast.Document, error) {
	return parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "GraphQL request",
		}),
	})
}

// ReMarshal converts one type to another
func ReMarshal(in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// GQLErrors normalizes the different error shapes into formatted errors
func GQLErrors(in interface{}) gqlerrors.FormattedErrors {
	switch v := in.(type) {
	case gqlerrors.FormattedErrors:
		return v
	case []gqlerrors.FormattedError:
		return v
	case []error:
		errs := gqlerrors.FormattedErrors{}
		for _, err := range v {
			errs = append(errs, gqlerrors.FormatError(err))
		}
		return errs
	case error:
		return gqlerrors.FormattedErrors{gqlerrors.FormatError(v)}
	case string:
		return gqlerrors.FormattedErrors{gqlerrors.NewFormattedError(v)}
	case map[string]interface{}, []interface{}:
		errs := gqlerrors.FormattedErrors{}
		if _, ok := v.(map[string]interface{}); ok {
			v = []interface{}{v}
		}
		if err := ReMarshal(v, &errs); err == nil && len(errs) > 0 {
			return errs
		}
	}

	err := fmt.Errorf("unspecified error")
	return gqlerrors.FormattedErrors{gqlerrors.FormatError(err)}
}
