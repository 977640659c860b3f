package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// fakeCMS serves the two catalog operations from an in-memory product set
// shaped like the content service's responses.
type fakeCMS struct {
	products []map[string]any

	mu       sync.Mutex
	requests []gqlRequest
}

func (f *fakeCMS) recorded() []gqlRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gqlRequest(nil), f.requests...)
}

func (f *fakeCMS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch req.OperationName {
	case "Products":
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"products": map[string]any{"data": f.products}},
		})
	case "Product":
		id, _ := req.Variables["id"].(string)
		var found any
		for _, p := range f.products {
			if p["id"] == id {
				found = p
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"product": map[string]any{"data": found}},
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":[{"message":"Unknown operation"}]}`)
	}
}

func productFixture(id, title string, price float64) map[string]any {
	return map[string]any{
		"id": id,
		"attributes": map[string]any{
			"title":       title,
			"description": "<p>" + title + "</p>",
			"price":       price,
			"features":    "## Features\n\n- sturdy",
			"Custom_field": []any{
				map[string]any{"title": "Size", "options": []string{"S", "M"}},
			},
			"images": map[string]any{"data": []any{
				map[string]any{
					"id": id + "-img",
					"attributes": map[string]any{
						"url": "/uploads/" + id + ".jpg",
						"formats": map[string]any{
							"thumbnail": map[string]any{"url": "/uploads/thumbnail_" + id + ".jpg", "width": 156},
							"small":     map[string]any{"url": "/uploads/small_" + id + ".jpg", "width": 500},
						},
					},
				},
			}},
		},
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{Endpoint: srv.URL + "/graphql", AssetBase: "http://cms.test/"})
}

func TestGetProducts(t *testing.T) {
	cms := &fakeCMS{products: []map[string]any{
		productFixture("1", "Zip Tote Basket", 140),
		productFixture("2", "Canvas Bag", 59.5),
	}}
	c := newTestClient(t, cms)

	products, err := c.GetProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	want := Product{
		ID:           "1",
		Title:        "Zip Tote Basket",
		Description:  "<p>Zip Tote Basket</p>",
		Price:        decimal.NewFromInt(140),
		Features:     "## Features\n\n- sturdy",
		CustomFields: []CustomField{{Title: "Size", Options: []string{"S", "M"}}},
		Images: []Image{{
			ID:  "1-img",
			URL: "/uploads/1.jpg",
			Formats: map[string]string{
				"thumbnail": "/uploads/thumbnail_1.jpg",
				"small":     "/uploads/small_1.jpg",
			},
		}},
	}
	if diff := cmp.Diff(want, products[0], cmp.Comparer(decimal.Decimal.Equal)); diff != "" {
		t.Errorf("products[0] mismatch (-want +got):\n%s", diff)
	}

	reqs := cms.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Products", reqs[0].OperationName)
	assert.EqualValues(t, 1, reqs[0].Variables["page"])
	assert.EqualValues(t, 20, reqs[0].Variables["pageSize"])
}

func TestGetProductsListingProperties(t *testing.T) {
	cms := &fakeCMS{}
	for i := 0; i < ListPageSize; i++ {
		cms.products = append(cms.products, productFixture(fmt.Sprint(i+1), fmt.Sprintf("Product %d", i+1), float64(i)))
	}
	c := newTestClient(t, cms)

	products, err := c.GetProducts(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(products), ListPageSize)

	for _, p := range products {
		assert.NotEmpty(t, p.Title)
		got, err := c.GetProduct(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	}
}

func TestGetProductsEmpty(t *testing.T) {
	c := newTestClient(t, &fakeCMS{})

	products, err := c.GetProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Empty(t, StaticPaths(products))
}

func TestGetProductNotFound(t *testing.T) {
	cms := &fakeCMS{products: []map[string]any{productFixture("1", "Tote", 1)}}
	c := newTestClient(t, cms)

	_, err := c.GetProduct(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = c.GetProduct(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.Len(t, cms.recorded(), 1, "empty id must not reach the content service")
}

func TestGetProductFillsMissingID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"product":{"data":{"attributes":{"title":"Tote","price":"12.50","images":{"data":[]}}}}}}`)
	}))

	p, err := c.GetProduct(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "7", p.ID)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))
}

func TestFetchAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rejected query",
			status: http.StatusBadRequest,
			body:   `{"errors":[{"message":"Syntax Error"}]}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se), "got %v", err)
				assert.Equal(t, http.StatusBadRequest, se.StatusCode)
				assert.Contains(t, se.Body, "Syntax Error")
			},
		},
		{
			name:   "errors in a 200 envelope",
			status: http.StatusOK,
			body:   `{"data":null,"errors":[{"message":"Cannot query field \"nope\""}]}`,
			check: func(t *testing.T, err error) {
				var ge *GraphQLError
				require.True(t, errors.As(err, &ge), "got %v", err)
				assert.Equal(t, []string{`Cannot query field "nope"`}, ge.Messages)
			},
		},
		{
			name:   "partial data with errors",
			status: http.StatusOK,
			body:   `{"data":{"products":{"data":[]}},"errors":[{"message":"Forbidden"}]}`,
			check: func(t *testing.T, err error) {
				var ge *GraphQLError
				assert.True(t, errors.As(err, &ge), "got %v", err)
			},
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   `<html>gateway</html>`,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
			},
		},
		{
			name:   "missing data",
			status: http.StatusOK,
			body:   `{}`,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   strings.Repeat("x", 2*maxErrorBody),
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se), "got %v", err)
				assert.Len(t, se.Body, maxErrorBody)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			data, err := c.FetchAPI(context.Background(), productsQuery, nil)
			require.Error(t, err)
			assert.Nil(t, data)
			tt.check(t, err)
		})
	}
}

func TestFetchAPITransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	c := NewClient(Options{Endpoint: endpoint})
	_, err := c.GetProducts(context.Background())
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestFetchAPISendsEmptyVariables(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		io.WriteString(w, `{"data":{"ok":true}}`)
	}))

	data, err := c.FetchAPI(context.Background(), MustParseQuery(`{ ok }`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.JSONEq(t, `{}`, string(raw["variables"]))
}

func TestFetchAPIRejectsUndeclaredVariables(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := c.FetchAPI(context.Background(), productQuery, map[string]any{"slug": "tote"})
	assert.Error(t, err)

	_, err = c.FetchAPI(context.Background(), MustParseQuery(`query Q($id: ID!) { product(id: $id) { data { id } } }`), nil)
	assert.Error(t, err)
	assert.False(t, called)
}

func TestGetProductsMalformedEntries(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing collection", `{"data":{"products":null}}`},
		{"missing attributes", `{"data":{"products":{"data":[{"id":"1"}]}}}`},
		{"missing title", `{"data":{"products":{"data":[{"id":"1","attributes":{"price":3}}]}}}`},
		{"missing price", `{"data":{"products":{"data":[{"id":"1","attributes":{"title":"Tote"}}]}}}`},
		{"price not numeric", `{"data":{"products":{"data":[{"id":"1","attributes":{"title":"Tote","price":"cheap"}}]}}}`},
		{"image without url", `{"data":{"products":{"data":[{"id":"1","attributes":{"title":"Tote","price":3,"images":{"data":[{"id":"i"}]}}}]}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			_, err := c.GetProducts(context.Background())
			assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
		})
	}
}

func TestAssetURL(t *testing.T) {
	c := NewClient(Options{AssetBase: "http://localhost:1337/"})
	tests := map[string]string{
		"/uploads/a.jpg":         "http://localhost:1337/uploads/a.jpg",
		"uploads/a.jpg":          "http://localhost:1337/uploads/a.jpg",
		"https://cdn.test/a.jpg": "https://cdn.test/a.jpg",
		"//cdn.test/a.jpg":       "//cdn.test/a.jpg",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, c.AssetURL(in), in)
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{`["Red","Blue"]`, []string{"Red", "Blue"}},
		{`[{"value":"S"},{"title":"M"}]`, []string{"S", "M"}},
		{`"Red, Blue ,"`, []string{"Red", "Blue"}},
		{`null`, nil},
		{`42`, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseOptions(json.RawMessage(tt.raw)), tt.raw)
	}
}

func TestImageRendition(t *testing.T) {
	img := Image{URL: "/uploads/a.jpg", Formats: map[string]string{"thumbnail": "/uploads/t_a.jpg"}}
	assert.Equal(t, "/uploads/t_a.jpg", img.Rendition("thumbnail"))
	assert.Equal(t, "/uploads/a.jpg", img.Rendition("small"))

	_, ok := Product{}.Thumbnail()
	assert.False(t, ok)
}
