// Copyright 2022 Google LLC
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

package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Payload is a form payload that can check itself.
type Payload interface {
	Validate() error
}

type SetCurrencyPayload struct {
	Currency string `validate:"required,iso4217"`
}

func (sc *SetCurrencyPayload) Validate() error {
	return validate.Struct(sc)
}

// RevalidatePayload asks for one product page to be regenerated.
type RevalidatePayload struct {
	ProductID string `validate:"required,max=64,printascii,excludesall=/?#"`
}

func (rp *RevalidatePayload) Validate() error {
	return validate.Struct(rp)
}

// ProductPathPayload is the product identifier taken from a page URL.
type ProductPathPayload struct {
	Slug string `validate:"required,max=64,printascii,excludesall=/?#"`
}

func (pp *ProductPathPayload) Validate() error {
	return validate.Struct(pp)
}

// ValidationErrorResponse turns validator errors into one readable error.
func ValidationErrorResponse(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return errors.New("invalid validation error")
	}
	var msg strings.Builder
	for _, e := range validationErrs {
		fmt.Fprintf(&msg, "Field '%s' is invalid: %s\n", e.Field(), e.Tag())
	}
	return errors.New(msg.String())
}
