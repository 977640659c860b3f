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

// Package content talks to the GraphQL content service that owns the product
// catalog. Every call is a single attempt; failures are returned to the caller.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// ListPage and ListPageSize bound the product listing. Only the first
	// page is ever requested.
	ListPage     = 1
	ListPageSize = 20

	maxErrorBody = 512
)

var (
	// ErrNotFound is returned when the content service has no product for
	// the requested id.
	ErrNotFound = errors.New("content: product not found")

	// ErrMalformedResponse is returned when a response does not match the
	// selection set of the query that produced it.
	ErrMalformedResponse = errors.New("content: malformed response")
)

// StatusError reports a non-2xx response from the content service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("content: status %d: %s", e.StatusCode, e.Body)
}

// GraphQLError reports errors listed in the response envelope, typically a
// query the service rejected.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "content: graphql: " + strings.Join(e.Messages, "; ")
}

// Options configures a Client.
type Options struct {
	// Endpoint is the GraphQL URL, e.g. http://localhost:1337/graphql.
	Endpoint string
	// AssetBase is prefixed to upload paths, e.g. http://localhost:1337.
	AssetBase string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client is a thin GraphQL-over-HTTP client for the catalog queries. It does
// not cache; every call goes to the content service.
type Client struct {
	endpoint   string
	assetBase  string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewClient returns a Client for opts.
func NewClient(opts Options) *Client {
	c := &Client{
		endpoint:   opts.Endpoint,
		assetBase:  strings.TrimSuffix(opts.AssetBase, "/"),
		httpClient: opts.HTTPClient,
		log:        opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		c.log = l
	}
	return c
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchAPI posts q with vars to the content service and returns the raw
// "data" member of the response envelope.
func (c *Client) FetchAPI(ctx context.Context, q *Query, vars map[string]any) (json.RawMessage, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	if err := q.checkVariables(vars); err != nil {
		return nil, errors.Wrap(err, "content")
	}
	body, err := json.Marshal(request{Query: q.String(), OperationName: q.Operation(), Variables: vars})
	if err != nil {
		return nil, errors.Wrap(err, "content: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "content: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log := c.log.WithField("operation", q.Operation())
	log.Debug("querying content service")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "content: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.WithField("status", resp.StatusCode).Warn("content service returned an error status")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "decode envelope: %v", err)
	}
	if len(env.Errors) > 0 {
		msgs := make([]string, len(env.Errors))
		for i, e := range env.Errors {
			msgs[i] = e.Message
		}
		return nil, &GraphQLError{Messages: msgs}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, errors.Wrap(ErrMalformedResponse, "missing data")
	}
	return env.Data, nil
}

// GetProducts returns the first page of the catalog, at most ListPageSize
// products, in the order the content service lists them.
func (c *Client) GetProducts(ctx context.Context) ([]Product, error) {
	data, err := c.FetchAPI(ctx, productsQuery, map[string]any{
		"page":     ListPage,
		"pageSize": ListPageSize,
	})
	if err != nil {
		return nil, err
	}
	var out productsData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "products: %v", err)
	}
	if out.Products == nil {
		return nil, errors.Wrap(ErrMalformedResponse, "products: missing collection")
	}
	if len(out.Products.Data) > ListPageSize {
		return nil, errors.Wrapf(ErrMalformedResponse, "products: %d entries exceed page size %d", len(out.Products.Data), ListPageSize)
	}
	products := make([]Product, 0, len(out.Products.Data))
	for i, e := range out.Products.Data {
		p, err := normalize(e)
		if err != nil {
			return nil, errors.Wrapf(err, "products[%d]", i)
		}
		products = append(products, p)
	}
	return products, nil
}

// GetProduct returns the product with the given id, or ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	if id == "" {
		return Product{}, ErrNotFound
	}
	data, err := c.FetchAPI(ctx, productQuery, map[string]any{"id": id})
	if err != nil {
		return Product{}, err
	}
	var out productData
	if err := json.Unmarshal(data, &out); err != nil {
		return Product{}, errors.Wrapf(ErrMalformedResponse, "product: %v", err)
	}
	if out.Product == nil || out.Product.Data == nil {
		return Product{}, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	entry := *out.Product.Data
	if entry.ID == "" {
		entry.ID = id
	}
	p, err := normalize(entry)
	if err != nil {
		return Product{}, errors.Wrapf(err, "product %q", id)
	}
	return p, nil
}

// AssetURL resolves a path returned by the content service against the asset
// base. Absolute URLs are returned unchanged.
func (c *Client) AssetURL(path string) string {
	return ResolveAsset(c.assetBase, path)
}

// AssetBase returns the configured asset base without a trailing slash.
func (c *Client) AssetBase() string { return c.assetBase }

// ResolveAsset joins base and path the way uploads are addressed: upload
// paths are absolute paths on the content host.
func ResolveAsset(base, path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "//") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(base, "/") + path
}

// StaticPaths returns the ids of products whose pages should be generated
// ahead of the first request.
func StaticPaths(products []Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func normalize(e productEntry) (Product, error) {
	if e.ID == "" {
		return Product{}, errors.Wrap(ErrMalformedResponse, "missing id")
	}
	a := e.Attributes
	if a == nil {
		return Product{}, errors.Wrapf(ErrMalformedResponse, "product %s: missing attributes", e.ID)
	}
	if strings.TrimSpace(a.Title) == "" {
		return Product{}, errors.Wrapf(ErrMalformedResponse, "product %s: missing title", e.ID)
	}
	if !a.Price.Valid {
		return Product{}, errors.Wrapf(ErrMalformedResponse, "product %s: missing price", e.ID)
	}
	p := Product{
		ID:          e.ID,
		Title:       a.Title,
		Description: a.Description,
		Price:       a.Price.Decimal,
		Features:    a.Features,
		Images:      make([]Image, 0, len(a.Images.Data)),
	}
	for _, f := range a.CustomFields {
		p.CustomFields = append(p.CustomFields, CustomField{Title: f.Title, Options: parseOptions(f.Options)})
	}
	for i, img := range a.Images.Data {
		if img.Attributes == nil || img.Attributes.URL == "" {
			return Product{}, errors.Wrapf(ErrMalformedResponse, "product %s: image %d has no url", e.ID, i)
		}
		im := Image{ID: img.ID, URL: img.Attributes.URL}
		if len(img.Attributes.Formats) > 0 {
			im.Formats = make(map[string]string, len(img.Attributes.Formats))
			for name, f := range img.Attributes.Formats {
				im.Formats[name] = f.URL
			}
		}
		p.Images = append(p.Images, im)
	}
	return p, nil
}
