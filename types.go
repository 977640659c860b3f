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

package main

import (
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/juntong/nextjsecom/cart"
	"github.com/juntong/nextjsecom/content"
)

// View models handed to the HTML templates and JSON bodies of the API
// routes. Catalog records come from the content package, cart lines from the
// cart package.

// Money is an amount in a given currency.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// productView is one tile of the home page grid.
type productView struct {
	Item      content.Product
	Price     Money
	Thumbnail string
}

// imageView holds the resolved URLs of one product image.
type imageView struct {
	ID        string
	Thumbnail string
	Full      string
}

// productPageView is everything the static product page renders.
type productPageView struct {
	Item        content.Product
	Price       Money
	Images      []imageView
	Description template.HTML
	Features    template.HTML
}

// cartLineView is one row of the cart page.
type cartLineView struct {
	Position int
	Item     cart.Item
}

// productJSON is the body of GET /api/products/{id}.
type productJSON struct {
	content.Product
	Links struct {
		Page   string   `json:"page"`
		Images []string `json:"images"`
	} `json:"links"`
}

// revalidateResponse is the body of POST /api/revalidate.
type revalidateResponse struct {
	Revalidated bool   `json:"revalidated"`
	ID          string `json:"id"`
	GeneratedAt string `json:"generatedAt,omitempty"`
	Error       string `json:"error,omitempty"`
}

// cartJSON is the body of GET /api/cart.
type cartJSON struct {
	Items []cart.Item `json:"items"`
	Size  int         `json:"size"`
}
