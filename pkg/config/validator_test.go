package config

import (
	"net/url"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

type validatorTestConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	FeedURL    string `mapstructure:"ws_base_url" validate:"required,wsurl"`
	Layout     string `mapstructure:"layout" validate:"oneof=single split quad"`
	MaxRetries int    `mapstructure:"max_retries" validate:"gte=0,lte=20"`
}

func wsURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	return err == nil && (u.Scheme == "ws" || u.Scheme == "wss")
}

// TestValidator 使用 mapstructure 名称报告字段
func TestValidator(t *testing.T) {
	v, err := NewValidator(WithRule("wsurl", wsURL))
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	tests := []struct {
		name     string
		cfg      validatorTestConfig
		wantErr  bool
		contains string
	}{
		{
			name: "valid",
			cfg:  validatorTestConfig{BaseURL: "http://localhost:8000", FeedURL: "ws://localhost:8000", Layout: "quad"},
		},
		{
			name:     "http feed url",
			cfg:      validatorTestConfig{BaseURL: "http://localhost:8000", FeedURL: "http://localhost:8000", Layout: "single"},
			wantErr:  true,
			contains: "ws_base_url",
		},
		{
			name:     "bad layout",
			cfg:      validatorTestConfig{BaseURL: "http://localhost:8000", FeedURL: "wss://cams", Layout: "grid"},
			wantErr:  true,
			contains: "layout must be one of",
		},
		{
			name:     "missing base url",
			cfg:      validatorTestConfig{FeedURL: "wss://cams", Layout: "split", MaxRetries: 21},
			wantErr:  true,
			contains: "base_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.cfg)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected %q in %q", tt.contains, err.Error())
			}
		})
	}
}

func TestValidatorNil(t *testing.T) {
	v, _ := NewValidator()
	if err := v.Validate(nil); !errors.Is(err, ErrNilConfig) {
		t.Fatalf("expected ErrNilConfig, got %v", err)
	}
}
