package cms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

var samplePost = domain.NewPost(domain.Draft{
	Title:  `"Zero Trust for Small Teams"`,
	Topic:  "zero trust",
	Body:   "<p>Start with identity.</p>",
	Labels: []string{"Zero Trust", "AI"},
}, "https://cdn.example.com/img.jpg")

func TestComposeBodyPutsImageFirst(t *testing.T) {
	body := ComposeBody(samplePost)
	img := strings.Index(body, `<img src="https://cdn.example.com/img.jpg" alt="Zero Trust for Small Teams"`)
	text := strings.Index(body, "<p>Start with identity.</p>")
	if img < 0 || text < 0 || img > text {
		t.Fatalf("unexpected body layout:\n%s", body)
	}

	noImage := samplePost
	noImage.ImageURL = ""
	if ComposeBody(noImage) != samplePost.Body {
		t.Fatalf("body without image should be unchanged")
	}
}

func TestHTTPPublishReturnsHandle(t *testing.T) {
	var got httpPostRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cms-token" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"42","url":"https://blog.example.com/p/42"}`))
	}))
	defer srv.Close()

	pub, err := NewHTTP(HTTPConfig{URL: srv.URL, Token: "cms-token"}, time.Second, nil)
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	handle, err := pub.Publish(context.Background(), samplePost)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if handle.ID != "42" || handle.URL != "https://blog.example.com/p/42" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	if got.Title != "Zero Trust for Small Teams" || got.ImageURL != samplePost.ImageURL || len(got.Labels) != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestHTTPPublishClassifiesFailures(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   domain.ErrorKind
	}{
		{http.StatusServiceUnavailable, "down", domain.KindTransient},
		{http.StatusUnauthorized, "bad token", domain.KindAuth},
		{http.StatusUnprocessableEntity, "title too long", domain.KindRejected},
		{http.StatusOK, `{"id":"1"}`, domain.KindRejected},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		pub, _ := NewHTTP(HTTPConfig{URL: srv.URL}, time.Second, nil)
		_, err := pub.Publish(context.Background(), samplePost)
		srv.Close()
		if domain.KindOf(err) != tc.want {
			t.Fatalf("status %d: kind = %v, want %v (err=%v)", tc.status, domain.KindOf(err), tc.want, err)
		}
	}
}

func TestBloggerPublishInsertsLivePost(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/blogs/blog-1/posts/") && !strings.HasSuffix(r.URL.Path, "/blogs/blog-1/posts") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("isDraft") != "false" {
			t.Errorf("expected isDraft=false, got %q", r.URL.RawQuery)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p1","url":"https://example.blogspot.com/2024/07/zero-trust.html"}`))
	}))
	defer srv.Close()

	b, err := newBloggerWithOptions(context.Background(), "blog-1", time.Second, nil,
		option.WithEndpoint(srv.URL+"/blogger/v3/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("newBloggerWithOptions: %v", err)
	}

	handle, err := b.Publish(context.Background(), samplePost)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if handle.URL != "https://example.blogspot.com/2024/07/zero-trust.html" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	if got["title"] != "Zero Trust for Small Teams" {
		t.Fatalf("unexpected title %v", got["title"])
	}
}

func TestBloggerPublishMapsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"blog not owned"}}`))
	}))
	defer srv.Close()

	b, _ := newBloggerWithOptions(context.Background(), "blog-1", time.Second, nil,
		option.WithEndpoint(srv.URL+"/blogger/v3/"),
		option.WithoutAuthentication(),
	)
	_, err := b.Publish(context.Background(), samplePost)
	if domain.KindOf(err) != domain.KindAuth {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(context.Background(), Config{Type: "ghost"}, nil); err == nil {
		t.Fatalf("expected error for unknown cms type")
	}
}
