package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	tele "gopkg.in/telebot.v3"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"net timeout", net.Error(timeoutErr{}), true},
		{"connect refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"api 500", &tele.Error{Code: 500, Description: "boom"}, true},
		{"api 502", &tele.Error{Code: 502, Description: "upstream"}, true},
		{"api 429", &tele.Error{Code: 429, Description: "flood"}, true},
		{"api 400", &tele.Error{Code: 400, Description: "bad request"}, false},
		{"api 403", &tele.Error{Code: 403, Description: "forbidden"}, false},
		{"too many requests text", errors.New("telegram: Too Many Requests"), true},
		{"retry after text", errors.New("telegram: retry after 3"), true},
		{"timed out text", errors.New("request Timed Out"), true},
		{"bad gateway text", errors.New("Bad Gateway"), true},
		{"gateway timeout text", errors.New("gateway timeout"), true},
		{"internal server error text", errors.New("Internal Server Error"), true},
		{"auth error", errors.New("telegram: unauthorized"), false},
		{"plain failure", errors.New("chat not found"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransientError(tc.err); got != tc.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func offlineClient() *Client {
	bot, _ := tele.NewBot(tele.Settings{Token: "test-token", Offline: true})
	return NewWithBot(bot, 777)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	c := offlineClient()
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return errors.New("chat not found")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent error retried %d times", calls)
	}
}

func TestWithRetryRetriesTransientThenSucceeds(t *testing.T) {
	c := offlineClient()
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("telegram: bad gateway")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	c := offlineClient()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := c.withRetry(ctx, func() error {
		calls++
		return errors.New("gateway timeout")
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls == 0 {
		t.Error("operation never attempted")
	}
}

func TestNextOffset(t *testing.T) {
	updates := []Update{{UpdateID: 7}, {UpdateID: 12}, {UpdateID: 9}}
	if got := NextOffset(0, updates); got != 13 {
		t.Errorf("NextOffset = %d, want 13", got)
	}
	if got := NextOffset(20, updates); got != 20 {
		t.Errorf("NextOffset should not regress: got %d", got)
	}
	if got := NextOffset(5, nil); got != 5 {
		t.Errorf("empty batch should keep offset: got %d", got)
	}
}
