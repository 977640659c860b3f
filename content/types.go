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
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as served by the content service.
type Product struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Features     string          `json:"features,omitempty"`
	CustomFields []CustomField   `json:"customFields,omitempty"`
	Images       []Image         `json:"images"`
}

// Thumbnail returns the first image's thumbnail rendition, falling back to the
// original upload. ok is false when the product has no images.
func (p Product) Thumbnail() (url string, ok bool) {
	if len(p.Images) == 0 {
		return "", false
	}
	return p.Images[0].Rendition("thumbnail"), true
}

// Image is one uploaded picture with its generated renditions.
type Image struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Formats map[string]string `json:"formats,omitempty"`
}

// Rendition returns the URL of the named format, or the original when the
// content service did not generate that format.
func (i Image) Rendition(format string) string {
	if u, ok := i.Formats[format]; ok && u != "" {
		return u
	}
	return i.URL
}

// CustomField is a titled list of options attached to a product.
type CustomField struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

// The types below mirror the selection sets of the fixed queries. They are
// decoded first and converted to the exported types by normalize.

type productsData struct {
	Products *productCollection `json:"products"`
}

type productData struct {
	Product *productEntity `json:"product"`
}

type productCollection struct {
	Data []productEntry `json:"data"`
}

type productEntity struct {
	Data *productEntry `json:"data"`
}

type productEntry struct {
	ID         string             `json:"id"`
	Attributes *productAttributes `json:"attributes"`
}

type productAttributes struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Price        decimal.NullDecimal `json:"price"`
	Features     string              `json:"features"`
	CustomFields []customFieldEntry  `json:"Custom_field"`
	Images       imageCollection     `json:"images"`
}

type customFieldEntry struct {
	Title   string          `json:"title"`
	Options json.RawMessage `json:"options"`
}

type imageCollection struct {
	Data []imageEntry `json:"data"`
}

type imageEntry struct {
	ID         string           `json:"id"`
	Attributes *imageAttributes `json:"attributes"`
}

type imageAttributes struct {
	URL     string                 `json:"url"`
	Formats map[string]imageFormat `json:"formats"`
}

type imageFormat struct {
	URL string `json:"url"`
}

// parseOptions accepts the shapes editors put into a JSON options field: an
// array of strings, an array of {value|title} objects, or one comma
// separated string.
func parseOptions(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var objs []struct {
		Value string `json:"value"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		for _, o := range objs {
			if o.Value != "" {
				list = append(list, o.Value)
			} else if o.Title != "" {
				list = append(list, o.Title)
			}
		}
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
	}
	return list
}
