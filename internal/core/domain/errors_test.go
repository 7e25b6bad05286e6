package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNewStatusError_Kinds(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindClientError},
		{http.StatusUnprocessableEntity, KindClientError},
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusRequestTimeout, KindServerError},
		{http.StatusTooManyRequests, KindServerError},
		{http.StatusInternalServerError, KindServerError},
		{http.StatusServiceUnavailable, KindServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := NewStatusError(&Response{StatusCode: tt.status, Body: []byte("boom")})
			if err.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", err.Kind, tt.want)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("failed to create bill: %w", NewCircuitOpenError(12*time.Second))

	if !errors.Is(err, ErrCircuitOpen) {
		t.Error("expected errors.Is to match ErrCircuitOpen")
	}
	if errors.Is(err, ErrServerDown) {
		t.Error("circuit open must not match ErrServerDown")
	}
	if KindOf(err) != KindCircuitOpen {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if !strings.Contains(err.Error(), "retry in 12s") {
		t.Errorf("message %q lacks cooldown", err.Error())
	}
}

func TestServerDown_WrapsLastFailure(t *testing.T) {
	last := NewStatusError(&Response{StatusCode: http.StatusBadGateway})
	err := NewServerDownError(last)

	if !errors.Is(err, ErrServerDown) {
		t.Error("expected ErrServerDown")
	}
	if !errors.Is(err, ErrServerError) {
		t.Error("expected the wrapped server error to be reachable")
	}

	var inner *Error
	if !errors.As(err.Unwrap(), &inner) || inner.StatusCode != http.StatusBadGateway {
		t.Errorf("unexpected cause %v", err.Unwrap())
	}
}

func TestKindOf_Unknown(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error should be KindUnknown")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("nil should be KindUnknown")
	}
}

func TestNewStatusError_TruncatesBody(t *testing.T) {
	body := strings.Repeat("x", 1000)
	err := NewStatusError(&Response{StatusCode: http.StatusBadRequest, Body: []byte(body)})
	if len(err.Message) != 256+len("...") {
		t.Errorf("Message length = %d", len(err.Message))
	}
}
