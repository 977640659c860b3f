package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"currency ok", &SetCurrencyPayload{Currency: "EUR"}, false},
		{"currency unknown", &SetCurrencyPayload{Currency: "ABC"}, true},
		{"currency empty", &SetCurrencyPayload{}, true},
		{"revalidate ok", &RevalidatePayload{ProductID: "12"}, false},
		{"revalidate empty", &RevalidatePayload{}, true},
		{"revalidate path chars", &RevalidatePayload{ProductID: "../1"}, true},
		{"slug ok", &ProductPathPayload{Slug: "zip-tote"}, false},
		{"slug too long", &ProductPathPayload{Slug: strings.Repeat("a", 65)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationErrorResponse(t *testing.T) {
	err := (&SetCurrencyPayload{}).Validate()
	msg := ValidationErrorResponse(err).Error()
	assert.Contains(t, msg, "Field 'Currency' is invalid: required")
}
