package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbay/openbay-node/internal/errors"
	"github.com/openbay/openbay-node/internal/validation"
)

type listing struct {
	Name   string `json:"name" validate:"notblank,max=256"`
	Magnet string `json:"magnet" validate:"required,magnet"`
	Alias  string `json:"alias,omitempty" validate:"omitempty,min=3"`
}

func TestIsMagnet(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"magnet:?xt=urn:btih:ABC123", true},
		{"MAGNET:?XT=URN:BTIH:abc123", true},
		{"magnet:?xt=urn:btmh:1220abcdef&dn=Foo&tr=udp://tracker", true},
		{"ftp://not-a-magnet", false},
		{"magnet:?xt=urn:btih:", false},
		{"magnet:?dn=foo", false},
		{" magnet:?xt=urn:btih:ABC", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, validation.IsMagnet(tt.in))
		})
	}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(listing{Name: "Foo", Magnet: "magnet:?xt=urn:btih:ABC123"})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       listing
		wantField string
		wantMsg   string
	}{
		{"blank name", listing{Name: "   ", Magnet: "magnet:?xt=urn:btih:A"}, "name", "is required"},
		{"missing magnet", listing{Name: "Foo"}, "magnet", "is required"},
		{"bad magnet", listing{Name: "Foo", Magnet: "ftp://not-a-magnet"}, "magnet", "must be a magnet link"},
		{"short alias", listing{Name: "Foo", Magnet: "magnet:?xt=urn:btih:A", Alias: "ab"}, "alias", "at least 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, errors.CodeInvalidInput, domainErr.Code)
			assert.Contains(t, domainErr.Message, tt.wantField)

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details[tt.wantField], tt.wantMsg)
		})
	}
}
