package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
)

const searchFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>search results</title>
  <entry>
    <id>t3_abc</id>
    <title>Working alone all day is killing me</title>
    <link href="%[1]s/r/design/comments/abc/working_alone/"/>
    <updated>%[2]s</updated>
    <content type="html">&lt;div class="md"&gt;&lt;p&gt;I never talk to anyone.&lt;/p&gt;&lt;/div&gt;</content>
  </entry>
  <entry>
    <id>t3_old</id>
    <title>Ancient thread</title>
    <link href="%[1]s/r/design/comments/old/ancient/"/>
    <updated>2001-01-01T00:00:00+00:00</updated>
    <content type="html">old</content>
  </entry>
</feed>`

const commentFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>comments</title>
  <entry>
    <id>t3_abc</id>
    <title>Working alone all day is killing me</title>
    <link href="%[1]s/r/design/comments/abc/working_alone/"/>
    <updated>%[2]s</updated>
    <content type="html">post body</content>
  </entry>
  <entry>
    <id>t1_c1</id>
    <title>reply</title>
    <link href="%[1]s/r/design/comments/abc/working_alone/c1/"/>
    <updated>%[2]s</updated>
    <content type="html">&lt;p&gt;Same here, I moved to a coworking space&lt;/p&gt;</content>
  </entry>
</feed>`

func TestClient_Fetch(t *testing.T) {
	var gotQuery, gotUA string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Format(time.RFC3339)
		switch {
		case r.URL.Path == "/r/design/search.rss":
			gotQuery = r.URL.Query().Get("q")
			gotUA = r.Header.Get("User-Agent")
			fmt.Fprintf(w, searchFeed, srv.URL, now)
		case strings.HasSuffix(r.URL.Path, "/.rss"):
			fmt.Fprintf(w, commentFeed, srv.URL, now)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(config.RedditConfig{BaseURL: srv.URL, UserAgent: "test-agent", CommentThreads: 3}, nil)
	resp, err := c.Fetch(context.Background(), &source.Request{
		Sources:   []string{"r/design", "hackernews"},
		Keywords:  []string{"remote work", "lonely"},
		Limit:     10,
		RangeDays: 30,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotQuery != `"remote work" OR lonely` || gotUA != "test-agent" {
		t.Errorf("query=%q ua=%q", gotQuery, gotUA)
	}
	if len(resp.SourcesUsed) != 1 || resp.SourcesUsed[0] != "r/design" {
		t.Errorf("SourcesUsed = %v", resp.SourcesUsed)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("got %d items, want post + comment: %+v", len(resp.Items), resp.Items)
	}
	p, cm := resp.Items[0], resp.Items[1]
	if p.ID != "t3_abc" || p.Kind != model.KindPost || p.Body != "I never talk to anyone." || p.Source != "r/design" {
		t.Errorf("unexpected post %+v", p)
	}
	if cm.ID != "t1_c1" || cm.Kind != model.KindComment || cm.Body != "Same here, I moved to a coworking space" {
		t.Errorf("unexpected comment %+v", cm)
	}
}

func TestClient_FetchAllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(config.RedditConfig{BaseURL: srv.URL}, nil)
	if _, err := c.Fetch(context.Background(), &source.Request{Sources: []string{"r/design"}}); err == nil {
		t.Fatal("expected error when every subreddit fails")
	}
}

func TestTimeWindow(t *testing.T) {
	tests := []struct {
		days     int
		velocity float64
		limit    int
		want     string
	}{
		{90, 0, 100, "year"},
		{30, 0, 100, "month"},
		{7, 0, 100, "week"},
		{0, 0, 100, "all"},
		{400, 0, 100, "all"},
		// 每天 500 帖，90 天远超 limit，收窄到 week
		{90, 500, 100, "week"},
		{90, 5, 100, "year"},
	}
	for _, tt := range tests {
		if got := TimeWindow(tt.days, tt.velocity, tt.limit); got != tt.want {
			t.Errorf("TimeWindow(%d, %v, %d) = %q, want %q", tt.days, tt.velocity, tt.limit, got, tt.want)
		}
	}
}
