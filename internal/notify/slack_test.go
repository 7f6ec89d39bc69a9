package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestSlack_OK(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got = payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if s == nil {
		t.Fatal("expected slack client")
	}
	if err := s.Send(context.Background(), "Scan finished", "up=3 down=1"); err != nil {
		t.Fatalf("send err: %v", err)
	}
	if !strings.HasPrefix(got, "*Scan finished*\n") {
		t.Fatalf("payload not as expected: %q", got)
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	if err := NewSlack(ts.URL).Send(context.Background(), "X", "Y"); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestSlack_Disabled(t *testing.T) {
	var s *Slack = NewSlack("")
	if err := s.Send(context.Background(), "X", "Y"); !errors.Is(err, ErrSlackDisabled) {
		t.Fatalf("want ErrSlackDisabled, got %v", err)
	}
}

type countingNotifier struct {
	n   int
	err error
}

func (c *countingNotifier) Send(context.Context, string, string) error {
	c.n++
	return c.err
}

func TestMulti_SendsToAllAndCombinesErrors(t *testing.T) {
	ok := &countingNotifier{}
	bad1 := &countingNotifier{err: errors.New("first")}
	bad2 := &countingNotifier{err: errors.New("second")}

	err := Multi{bad1, nil, ok, bad2}.Send(context.Background(), "t", "x")
	if ok.n != 1 || bad1.n != 1 || bad2.n != 1 {
		t.Fatalf("every notifier should be called once: %d %d %d", ok.n, bad1.n, bad2.n)
	}
	if errs := multierr.Errors(err); len(errs) != 2 {
		t.Fatalf("want 2 combined errors, got %v", err)
	}
}
