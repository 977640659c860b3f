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

// Package richtext turns editor-supplied product content into HTML that is
// safe to embed in a page.
package richtext

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Renderer renders product descriptions and feature content. Image sources
// are passed through resolve so uploads point at the content host.
type Renderer struct {
	resolve func(string) string
	md      goldmark.Markdown
	policy  *bluemonday.Policy
}

// New returns a Renderer. A nil resolve leaves image sources unchanged.
func New(resolve func(string) string) *Renderer {
	if resolve == nil {
		resolve = func(s string) string { return s }
	}
	r := &Renderer{resolve: resolve}
	r.md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(imageTransformer{resolve: resolve}, 100)),
		),
		// Raw HTML is kept here and stripped by the sanitizer below.
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	r.policy = bluemonday.UGCPolicy()
	r.policy.AllowAttrs("class").Globally()
	return r
}

// Description sanitizes an HTML description and rewrites relative image
// sources.
func (r *Renderer) Description(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	rewritten, err := r.rewriteImages(src)
	if err != nil {
		return "", errors.Wrap(err, "description")
	}
	return template.HTML(r.policy.Sanitize(rewritten)), nil
}

// Features renders markdown feature content to sanitized HTML.
func (r *Renderer) Features(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", errors.Wrap(err, "features")
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

func (r *Renderer) rewriteImages(src string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		r.walk(n)
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func (r *Renderer) walk(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		for i, a := range n.Attr {
			if a.Namespace == "" && a.Key == "src" {
				n.Attr[i].Val = r.resolve(a.Val)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

type imageTransformer struct {
	resolve func(string) string
}

func (t imageTransformer) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := n.(*ast.Image); ok {
			img.Destination = []byte(t.resolve(string(img.Destination)))
		}
		return ast.WalkContinue, nil
	})
}
