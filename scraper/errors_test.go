package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server", err: nil, statusCode: http.StatusBadGateway, expected: "server"},
		{name: "canceled", err: context.Canceled, statusCode: 0, expected: "canceled"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestClassifyErrorSuccess(t *testing.T) {
	if err := classifyError(nil, http.StatusOK); err != nil {
		t.Fatalf("classifyError(nil, 200) = %v, want nil", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{err: ErrTimeout{Err: context.DeadlineExceeded}, expected: true},
		{err: ErrConnection{Err: errors.New("reset")}, expected: true},
		{err: ErrRateLimited{Err: errors.New("429")}, expected: true},
		{err: ErrServer{Err: errors.New("503")}, expected: true},
		{err: ErrNotFound{Err: errors.New("404")}, expected: false},
		{err: ErrForbidden{Err: errors.New("403")}, expected: false},
		{err: context.Canceled, expected: false},
	}

	for _, tt := range tests {
		t.Run(errorTypeLabel(tt.err), func(t *testing.T) {
			if got := retryable(tt.err); got != tt.expected {
				t.Fatalf("retryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
