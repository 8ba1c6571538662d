package web

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
)

type stubSearcher struct {
	resp *Response
	err  error
	last *Request
}

func (s *stubSearcher) Search(_ context.Context, req *Request) (*Response, error) {
	s.last = req
	return s.resp, s.err
}

func TestFetcher_Fetch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &stubSearcher{resp: &Response{Results: []Result{
		{Title: "Why I quit <b>invoicing</b> apps", URL: "https://blog.example.com/a", Content: "short", RawContent: "I hate chasing invoices", PublishedDate: "2026-02-20"},
		{Title: "Old post", URL: "https://blog.example.com/b", Content: "too old", PublishedDate: "2024-01-01T10:00:00Z"},
		{Title: "Undated", URL: "https://forum.example.com/c", Content: "<p>no date here</p>"},
		{Title: "No link"},
	}}}
	f := NewFetcher(s, nil, 10)
	f.now = func() time.Time { return now }

	resp, err := f.Fetch(context.Background(), &source.Request{
		Sources:   []string{"r/freelance", source.Web},
		Keywords:  []string{"invoice", "freelance"},
		Limit:     50,
		RangeDays: 90,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if s.last.Query != "invoice freelance" || s.last.MaxResults != 10 || s.last.StartDate != "2025-12-01" {
		t.Errorf("unexpected search request %+v", s.last)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(resp.Items), resp.Items)
	}
	first := resp.Items[0]
	if first.Kind != model.KindPost || first.Source != source.Web || first.Body != "I hate chasing invoices" {
		t.Errorf("unexpected item %+v", first)
	}
	if first.Title != "Why I quit invoicing apps" {
		t.Errorf("title not stripped: %q", first.Title)
	}
	if !strings.HasPrefix(first.ID, "web_") || first.ID == resp.Items[1].ID {
		t.Errorf("bad ids %q %q", first.ID, resp.Items[1].ID)
	}
	if resp.Items[1].Body != "no date here" || !resp.Items[1].CreatedAt.IsZero() {
		t.Errorf("undated item = %+v", resp.Items[1])
	}
	if len(resp.SourcesUsed) != 1 || resp.SourcesUsed[0] != source.Web {
		t.Errorf("SourcesUsed = %v", resp.SourcesUsed)
	}
}

func TestFetcher_NotRequested(t *testing.T) {
	s := &stubSearcher{err: errors.New("should not be called")}
	resp, err := NewFetcher(s, nil, 0).Fetch(context.Background(), &source.Request{
		Sources:  []string{source.HackerNews},
		Keywords: []string{"x"},
	})
	if err != nil || len(resp.Items) != 0 || s.last != nil {
		t.Fatalf("Fetch() = %+v, %v", resp, err)
	}
}

func TestFetcher_SearchError(t *testing.T) {
	s := &stubSearcher{err: errors.New("quota exceeded")}
	_, err := NewFetcher(s, nil, 0).Fetch(context.Background(), &source.Request{
		Sources:  []string{source.Web},
		Keywords: []string{"x"},
	})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-02-20", "2026-02-20"},
		{"2026-02-20T08:30:00Z", "2026-02-20"},
		{"2026-02-20T08:30:00", "2026-02-20"},
		{"Fri, 20 Feb 2026 08:30:00 +0000", "2026-02-20"},
		{"yesterday", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := parseDate(tt.in)
		if tt.want == "" {
			if !got.IsZero() {
				t.Errorf("parseDate(%q) = %v, want zero", tt.in, got)
			}
			continue
		}
		if got.Format(time.DateOnly) != tt.want {
			t.Errorf("parseDate(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}
