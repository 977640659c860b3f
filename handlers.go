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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/juntong/nextjsecom/cart"
	"github.com/juntong/nextjsecom/content"
	"github.com/juntong/nextjsecom/pagecache"
	"github.com/juntong/nextjsecom/validator"
)

var (
	templates = template.Must(template.New("").
			Funcs(template.FuncMap{
			"renderMoney":        renderMoney,
			"renderCurrencyLogo": renderCurrencyLogo,
			"add":                func(a, b int) int { return a + b },
		}).ParseGlob("templates/*.html"))
)

func (fe *frontendServer) homeHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	log.WithField("currency", currentCurrency(r)).Info("home")

	products, err := fe.getProducts(r.Context())
	if err != nil {
		fe.renderHTTPError(log, r, w, errors.Wrap(err, "could not retrieve products"), http.StatusInternalServerError)
		return
	}

	ps := make([]productView, len(products))
	for i, p := range products {
		var thumb string
		if u, ok := p.Thumbnail(); ok {
			thumb = fe.catalog.AssetURL(u)
		}
		ps[i] = productView{
			Item:      p,
			Price:     fe.convertCurrency(p.Price, currentCurrency(r)),
			Thumbnail: thumb,
		}
	}

	if err := templates.ExecuteTemplate(w, "home", fe.injectCommonTemplateData(r, map[string]interface{}{
		"show_currency": true,
		"currencies":    fe.getCurrencies(),
		"products":      ps,
		"cart_size":     len(fe.getCart(sessionID(r))),
	})); err != nil {
		log.Error(err)
	}
}

// productHandler serves the statically generated page of one product. Pages
// come from the page cache; a product seen for the first time is generated
// before the response is written.
func (fe *frontendServer) productHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	payload := validator.ProductPathPayload{Slug: mux.Vars(r)["slug"]}
	if err := payload.Validate(); err != nil {
		fe.renderHTTPError(log, r, w, validator.ValidationErrorResponse(err), http.StatusNotFound)
		return
	}
	log = log.WithField("id", payload.Slug)
	log.Debug("serving product page")

	page, status, err := fe.pages.Get(r.Context(), payload.Slug)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			fe.renderHTTPError(log, r, w, errors.Wrapf(err, "no product %q", payload.Slug), http.StatusNotFound)
			return
		}
		fe.renderHTTPError(log, r, w, errors.Wrap(err, "could not generate product page"), http.StatusInternalServerError)
		return
	}
	log.WithField("cache", status).Debug("product page ready")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Page-Cache", string(status))
	w.Header().Set("Last-Modified", page.GeneratedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", fmt.Sprintf("s-maxage=%d, stale-while-revalidate", int(fe.revalidate/time.Second)))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(page.Body); err != nil {
		log.WithField("error", err).Warn("failed to write product page")
	}
}

// renderProductPage is the page cache generator for product pages. It only
// uses data that is the same for every visitor.
func (fe *frontendServer) renderProductPage(ctx context.Context, id string) ([]byte, error) {
	p, err := fe.getProduct(ctx, id)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, pagecache.Gone(err)
		}
		return nil, errors.Wrap(err, "could not retrieve product")
	}

	description, err := fe.richtext.Description(p.Description)
	if err != nil {
		return nil, errors.Wrapf(err, "product %s", id)
	}
	features, err := fe.richtext.Features(p.Features)
	if err != nil {
		return nil, errors.Wrapf(err, "product %s", id)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "product", fe.staticTemplateData(map[string]interface{}{
		"product": productPageView{
			Item:        p,
			Price:       fe.convertCurrency(p.Price, defaultCurrency),
			Images:      fe.productImages(p),
			Description: description,
			Features:    features,
		},
		"revalidate": int(fe.revalidate / time.Second),
	})); err != nil {
		return nil, errors.Wrapf(err, "render product %s", id)
	}
	return buf.Bytes(), nil
}

func (fe *frontendServer) productJSONHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	id := mux.Vars(r)["id"]

	p, err := fe.getProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeJSON(log, w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.WithField("error", err).Error("could not retrieve product")
		writeJSON(log, w, http.StatusBadGateway, map[string]string{"error": "content service unavailable"})
		return
	}

	body := productJSON{Product: p}
	body.Links.Page = fe.baseURL + "/products/" + p.ID
	for _, img := range p.Images {
		body.Links.Images = append(body.Links.Images, fe.catalog.AssetURL(img.URL))
	}
	writeJSON(log, w, http.StatusOK, body)
}

// revalidateHandler regenerates one product page on demand, for example from
// a content service webhook.
func (fe *frontendServer) revalidateHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	payload := validator.RevalidatePayload{ProductID: r.FormValue("id")}
	if err := payload.Validate(); err != nil {
		writeJSON(log, w, http.StatusUnprocessableEntity, revalidateResponse{
			ID:    payload.ProductID,
			Error: validator.ValidationErrorResponse(err).Error(),
		})
		return
	}

	page, err := fe.pages.Revalidate(r.Context(), payload.ProductID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, content.ErrNotFound) {
			status = http.StatusNotFound
		}
		log.WithField("id", payload.ProductID).WithField("error", err).Warn("revalidation failed")
		writeJSON(log, w, status, revalidateResponse{ID: payload.ProductID, Error: err.Error()})
		return
	}
	log.WithField("id", payload.ProductID).Info("page revalidated")
	writeJSON(log, w, http.StatusOK, revalidateResponse{
		Revalidated: true,
		ID:          payload.ProductID,
		GeneratedAt: page.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

func (fe *frontendServer) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	productID := r.FormValue("product_id")
	items := fe.addToCart(sessionID(r), productID)
	log.WithField("product", productID).WithField("cart_size", len(items)).Debug("added to cart")

	w.Header().Set("location", fe.baseURL+"/cart")
	w.WriteHeader(http.StatusFound)
}

func (fe *frontendServer) emptyCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	log.Debug("emptying cart")

	fe.emptyCart(sessionID(r))
	w.Header().Set("location", fe.baseURL+"/")
	w.WriteHeader(http.StatusFound)
}

func (fe *frontendServer) viewCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	log.Debug("view user cart")

	items := fe.getCart(sessionID(r))
	lines := make([]cartLineView, len(items))
	for i, it := range items {
		lines[i] = cartLineView{Position: i + 1, Item: it}
	}

	if err := templates.ExecuteTemplate(w, "cart", fe.injectCommonTemplateData(r, map[string]interface{}{
		"currencies":    fe.getCurrencies(),
		"show_currency": false,
		"cart_size":     len(items),
		"items":         lines,
	})); err != nil {
		log.Error(err)
	}
}

func (fe *frontendServer) cartJSONHandler(w http.ResponseWriter, r *http.Request) {
	items := fe.getCart(sessionID(r))
	if items == nil {
		items = []cart.Item{}
	}
	writeJSON(requestLogger(r), w, http.StatusOK, cartJSON{Items: items, Size: len(items)})
}

func (fe *frontendServer) setCurrencyHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	cur := r.FormValue("currency_code")
	payload := validator.SetCurrencyPayload{Currency: cur}
	if err := payload.Validate(); err != nil {
		fe.renderHTTPError(log, r, w, validator.ValidationErrorResponse(err), http.StatusUnprocessableEntity)
		return
	}
	log.WithField("curr.new", payload.Currency).WithField("curr.old", currentCurrency(r)).
		Debug("setting currency")

	http.SetCookie(w, &http.Cookie{
		Name:   cookieCurrency,
		Value:  payload.Currency,
		MaxAge: cookieMaxAge,
		Path:   "/",
	})
	referer := r.Header.Get("referer")
	if referer == "" {
		referer = fe.baseURL + "/"
	}
	w.Header().Set("Location", referer)
	w.WriteHeader(http.StatusFound)
}

func (fe *frontendServer) renderHTTPError(log logrus.FieldLogger, r *http.Request, w http.ResponseWriter, err error, code int) {
	log.WithField("error", err).Error("request error")
	errMsg := fmt.Sprintf("%+v", err)

	w.WriteHeader(code)

	if templateErr := templates.ExecuteTemplate(w, "error", fe.injectCommonTemplateData(r, map[string]interface{}{
		"error":       errMsg,
		"status_code": code,
		"status":      http.StatusText(code),
	})); templateErr != nil {
		log.Println(templateErr)
	}
}

func writeJSON(log logrus.FieldLogger, w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("error", err).Warn("failed to encode response")
	}
}

// staticTemplateData is the template data shared by every page, without
// anything tied to a visitor. Statically generated pages use it directly.
func (fe *frontendServer) staticTemplateData(payload map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"currentYear": time.Now().Year(),
		"baseUrl":     fe.baseURL,
	}
	for k, v := range payload {
		data[k] = v
	}
	return data
}

func (fe *frontendServer) injectCommonTemplateData(r *http.Request, payload map[string]interface{}) map[string]interface{} {
	data := fe.staticTemplateData(map[string]interface{}{
		"session_id":    sessionID(r),
		"request_id":    r.Context().Value(ctxKeyRequestID{}),
		"user_currency": currentCurrency(r),
	})
	for k, v := range payload {
		data[k] = v
	}
	return data
}

func currentCurrency(r *http.Request) string {
	c, _ := r.Cookie(cookieCurrency)
	if c != nil {
		if _, ok := exchangeRates[c.Value]; ok {
			return c.Value
		}
	}
	return defaultCurrency
}

func sessionID(r *http.Request) string {
	v := r.Context().Value(ctxKeySessionID{})
	if v != nil {
		return v.(string)
	}
	return ""
}

func renderMoney(m Money) string {
	return renderCurrencyLogo(m.CurrencyCode) + m.Amount.StringFixed(2)
}

func renderCurrencyLogo(currencyCode string) string {
	logos := map[string]string{
		"USD": "$",
		"CAD": "$",
		"JPY": "¥",
		"EUR": "€",
		"TRY": "₺",
		"GBP": "£",
	}

	logo := "$" //default
	if val, ok := logos[currencyCode]; ok {
		logo = val
	}
	return logo
}
