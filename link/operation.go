package link

import (
	"fmt"
	"sync"

	"github.com/bhoriuchi/graphql-go-client/utils"
	"github.com/graphql-go/graphql/language/ast"
)

// Operation is a single GraphQL request travelling through a link chain.
// Links may modify it in place, it must not be copied once created.
type Operation struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
	Extensions    map[string]interface{}

	// Headers are sent with http requests
	Headers map[string]string

	once     sync.Once
	document *ast.Document
	parseErr error
}

// NewOperation creates an operation
func NewOperation(query, operationName string, variables map[string]interface{}) *Operation {
	return &Operation{
		Query:         query,
		OperationName: operationName,
		Variables:     variables,
		Headers:       map[string]string{},
	}
}

// Document parses the query on first use
func (o *Operation) Document() (*ast.Document, error) {
	o.once.Do(func() {
		o.document, o.parseErr = utils.ParseQuery(o.Query)
	})
	return o.document, o.parseErr
}

// Kind returns the operation type of the main definition, an empty string is
// returned for fragment only or unparsable documents
func (o *Operation) Kind() string {
	doc, err := o.Document()
	if err != nil {
		return ""
	}

	def, err := MainDefinition(doc, o.OperationName)
	if err != nil {
		return ""
	}

	if op, ok := def.(*ast.OperationDefinition); ok {
		return op.Operation
	}
	return ""
}

// SetHeader sets a single header
func (o *Operation) SetHeader(key, value string) {
	if o.Headers == nil {
		o.Headers = map[string]string{}
	}
	o.Headers[key] = value
}

// IsSubscription returns true if the main definition of the operation is a
// subscription. Documents that fail to parse are not subscriptions.
func IsSubscription(op *Operation) bool {
	return op.Kind() == ast.OperationTypeSubscription
}

// MainDefinition returns the operation named operationName, the first
// operation when no name is given, or the first fragment when the document
// has no operations
func MainDefinition(doc *ast.Document, operationName string) (ast.Definition, error) {
	if doc == nil {
		return nil, fmt.Errorf("no document provided")
	}

	var fragment ast.Definition

	for _, def := range doc.Definitions {
		switch def := def.(type) {
		case *ast.OperationDefinition:
			if operationName == "" {
				return def, nil
			}
			if def.GetName() != nil && def.GetName().Value == operationName {
				return def, nil
			}
		case *ast.FragmentDefinition:
			if fragment == nil {
				fragment = def
			}
		}
	}

	if operationName != "" {
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}

	if fragment != nil {
		return fragment, nil
	}

	return nil, fmt.Errorf("expected a document with a query, mutation, subscription or fragment")
}
