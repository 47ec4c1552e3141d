package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type adjustRequest struct {
	CustomerID    string `json:"customer_id" validate:"identifier"`
	Points        int64  `json:"points" validate:"required"`
	ReferenceType string `json:"reference_type" validate:"omitempty,oneof=referral redemption manual_adjustment"`
	Limit         int    `json:"limit" validate:"gte=0,lte=100"`
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{name: "plain", value: "CUST-0042", valid: true},
		{name: "uuid", value: "9b2f6c1e-3f0a-4c53-9d7e-2b7a1c0d5e11", valid: true},
		{name: "surrounding spaces", value: "  CUST-1 ", valid: true},
		{name: "empty", value: "", valid: false},
		{name: "blank", value: "   ", valid: false},
		{name: "inner space", value: "CUST 1", valid: false},
		{name: "control char", value: "CUST\x001", valid: false},
		{name: "too long", value: strings.Repeat("a", maxIdentifierLen+1), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdentifier(tt.value); got != tt.valid {
				t.Fatalf("IsIdentifier(%q) = %v, want %v", tt.value, got, tt.valid)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		malformed  bool
		fieldsErr  []string
		wantPoints int64
	}{
		{
			name:       "valid",
			body:       `{"customer_id":"C-1","points":25,"reference_type":"manual_adjustment"}`,
			wantPoints: 25,
		},
		{
			name:      "broken json",
			body:      `{"customer_id":`,
			malformed: true,
		},
		{
			name:      "unknown field",
			body:      `{"customer_id":"C-1","points":1,"extra":true}`,
			malformed: true,
		},
		{
			name:      "rule violations",
			body:      `{"customer_id":" ","points":0,"reference_type":"bonus","limit":500}`,
			fieldsErr: []string{"customer_id", "points", "reference_type", "limit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var req adjustRequest
			err := DecodeJSON(r, &req)

			switch {
			case tt.malformed:
				if !errors.Is(err, ErrMalformedBody) {
					t.Fatalf("error = %v, want ErrMalformedBody", err)
				}
			case len(tt.fieldsErr) > 0:
				var fe *FieldsError
				if !errors.As(err, &fe) {
					t.Fatalf("error = %v, want *FieldsError", err)
				}
				for _, f := range tt.fieldsErr {
					if _, ok := fe.Fields[f]; !ok {
						t.Fatalf("field %q not reported in %v", f, fe.Fields)
					}
				}
				if len(fe.Fields) != len(tt.fieldsErr) {
					t.Fatalf("fields = %v, want exactly %v", fe.Fields, tt.fieldsErr)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if req.Points != tt.wantPoints {
					t.Fatalf("points = %d, want %d", req.Points, tt.wantPoints)
				}
			}
		})
	}
}

func TestFieldsErrorMessage(t *testing.T) {
	err := &FieldsError{Fields: map[string]string{"points": "is required", "customer_id": "is invalid"}}
	want := "validation failed: customer_id is invalid; points is required"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNewValidatorRegistersIdentifier(t *testing.T) {
	v := newValidator()

	if err := v.Struct(adjustRequest{CustomerID: "C-1", Points: 1}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if err := v.Struct(adjustRequest{CustomerID: "C 1", Points: 1}); err == nil {
		t.Fatal("identifier rule is not applied")
	}
}
