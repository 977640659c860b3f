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
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/juntong/nextjsecom/cart"
	"github.com/juntong/nextjsecom/content"
)

// catalog is the part of the content client the storefront depends on.
type catalog interface {
	GetProducts(ctx context.Context) ([]content.Product, error)
	GetProduct(ctx context.Context, id string) (content.Product, error)
	AssetURL(path string) string
}

// Exchange rates relative to USD, the currency prices are stored in.
var exchangeRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("0.92"),
	"CAD": decimal.RequireFromString("1.37"),
	"JPY": decimal.RequireFromString("154.70"),
	"GBP": decimal.RequireFromString("0.79"),
	"TRY": decimal.RequireFromString("34.25"),
}

func (fe *frontendServer) getCurrencies() []string {
	out := make([]string, 0, len(exchangeRates))
	for code := range exchangeRates {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func (fe *frontendServer) getProducts(ctx context.Context) ([]content.Product, error) {
	return fe.catalog.GetProducts(ctx)
}

func (fe *frontendServer) getProduct(ctx context.Context, id string) (content.Product, error) {
	return fe.catalog.GetProduct(ctx, id)
}

// getCart reads a session's cart. Sessions that never added anything have
// no store and an empty cart.
func (fe *frontendServer) getCart(sessionID string) []cart.Item {
	st, ok := fe.carts.Lookup(sessionID)
	if !ok {
		return nil
	}
	return cart.CartItems(st.State())
}

func (fe *frontendServer) addToCart(sessionID, productID string) []cart.Item {
	return cart.CartItems(fe.carts.Store(sessionID).Dispatch(cart.AddCart{ProductID: productID}))
}

func (fe *frontendServer) emptyCart(sessionID string) {
	if st, ok := fe.carts.Lookup(sessionID); ok {
		st.Dispatch(cart.EmptyCart{})
	}
}

// convertCurrency converts a USD amount. Unknown currencies fall back to
// USD.
func (fe *frontendServer) convertCurrency(amount decimal.Decimal, currency string) Money {
	rate, ok := exchangeRates[currency]
	if !ok {
		return Money{Amount: amount, CurrencyCode: defaultCurrency}
	}
	return Money{Amount: amount.Mul(rate).Round(2), CurrencyCode: currency}
}

// productImages resolves every image of p against the content host.
func (fe *frontendServer) productImages(p content.Product) []imageView {
	out := make([]imageView, len(p.Images))
	for i, img := range p.Images {
		out[i] = imageView{
			ID:        img.ID,
			Thumbnail: fe.catalog.AssetURL(img.Rendition("thumbnail")),
			Full:      fe.catalog.AssetURL(img.URL),
		}
	}
	return out
}
