package platformerrors

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestNewErrorCarriesRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	err := NewError(ctx, LayerDomain, ErrorTypeNotFound, "session not found", nil, "")

	if err.RequestID != "req-123" {
		t.Errorf("RequestID = %q, want req-123", err.RequestID)
	}
	if err.UUID == "" {
		t.Error("expected generated UUID")
	}
	if !IsErrorType(err, ErrorTypeNotFound) {
		t.Error("expected NOT_FOUND type")
	}
}

func TestAsErrorKeepsType(t *testing.T) {
	inner := NewError(context.Background(), LayerRepository, ErrorTypeDatabaseError, "insert failed", errors.New("boom"), "fixed-uuid")
	outer := AsError(context.Background(), LayerDomain, inner, "create message")

	if outer.Type != ErrorTypeDatabaseError {
		t.Errorf("Type = %s, want %s", outer.Type, ErrorTypeDatabaseError)
	}
	if outer.UUID != "fixed-uuid" {
		t.Errorf("UUID = %s, want fixed-uuid", outer.UUID)
	}
	if !errors.Is(outer, inner) {
		t.Error("expected outer to wrap inner")
	}

	plain := AsError(context.Background(), LayerDomain, errors.New("x"), "wrap")
	if plain.Type != ErrorTypeInternal {
		t.Errorf("plain error type = %s, want INTERNAL", plain.Type)
	}
	if AsError(context.Background(), LayerDomain, nil, "nil") != nil {
		t.Error("AsError(nil) should be nil")
	}
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      int
	}{
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeConflict, http.StatusConflict},
		{ErrorTypeTimeout, http.StatusGatewayTimeout},
		{ErrorTypeExternal, http.StatusBadGateway},
		{ErrorTypeDatabaseError, http.StatusInternalServerError},
		{ErrorType("UNKNOWN"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			if got := ErrorTypeToHTTPStatus(tt.errorType); got != tt.want {
				t.Errorf("ErrorTypeToHTTPStatus(%s) = %d, want %d", tt.errorType, got, tt.want)
			}
		})
	}
}

func TestTypeOf(t *testing.T) {
	if got := TypeOf(errors.New("plain")); got != ErrorTypeInternal {
		t.Errorf("TypeOf(plain) = %s", got)
	}
	wrapped := errors.Join(errors.New("ctx"), NewError(context.Background(), LayerDomain, ErrorTypeTimeout, "slow", nil, ""))
	if got := TypeOf(wrapped); got != ErrorTypeTimeout {
		t.Errorf("TypeOf(wrapped) = %s", got)
	}
}
