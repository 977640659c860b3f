// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package content

import (
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Query is a fixed GraphQL document that has been parsed once so its
// operation name and declared variables are known before it is sent.
type Query struct {
	src       string
	operation string
	variables map[string]bool // name -> non-null
}

// ParseQuery parses a single-operation GraphQL document.
func ParseQuery(src string) (*Query, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: src})
	if err != nil {
		return nil, fmt.Errorf("parse query: %v", err)
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("parse query: want exactly one operation, got %d", len(doc.Operations))
	}
	op := doc.Operations[0]
	q := &Query{
		src:       src,
		operation: op.Name,
		variables: make(map[string]bool, len(op.VariableDefinitions)),
	}
	for _, v := range op.VariableDefinitions {
		q.variables[v.Variable] = v.Type != nil && v.Type.NonNull
	}
	return q, nil
}

// MustParseQuery is like ParseQuery but panics on error. It is meant for
// package-level query templates.
func MustParseQuery(src string) *Query {
	q, err := ParseQuery(src)
	if err != nil {
		panic(err)
	}
	return q
}

// String returns the query source as sent on the wire.
func (q *Query) String() string { return q.src }

// Operation returns the operation name, empty for anonymous queries.
func (q *Query) Operation() string { return q.operation }

// Variables returns the declared variable names in sorted order.
func (q *Query) Variables() []string {
	names := make([]string, 0, len(q.variables))
	for n := range q.variables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// checkVariables rejects variables the document does not declare and missing
// non-null ones.
func (q *Query) checkVariables(vars map[string]any) error {
	for name := range vars {
		if _, ok := q.variables[name]; !ok {
			return fmt.Errorf("variable $%s is not declared by the query", name)
		}
	}
	for name, nonNull := range q.variables {
		if !nonNull {
			continue
		}
		if v, ok := vars[name]; !ok || v == nil {
			return fmt.Errorf("variable $%s is required", name)
		}
	}
	return nil
}

var productsQuery = MustParseQuery(`
query Products($page: Int, $pageSize: Int) {
  products(pagination: { page: $page, pageSize: $pageSize }) {
    data {
      id
      attributes {
        title
        description
        price
        images {
          data {
            id
            attributes {
              url
              formats
            }
          }
        }
      }
    }
  }
}
`)

var productQuery = MustParseQuery(`
query Product($id: ID) {
  product(id: $id) {
    data {
      id
      attributes {
        title
        description
        price
        Custom_field {
          title
          options
        }
        features
        images {
          data {
            id
            attributes {
              url
              formats
            }
          }
        }
      }
    }
  }
}
`)
