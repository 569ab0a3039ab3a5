package publishers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

func newTestX(t *testing.T, baseURL string) Publisher {
	t.Helper()
	cfg := sanitizePublisherConfig(PublisherConfig{
		ID:   "x",
		Type: TypeX,
		X:    &XPublisherConfig{BearerToken: "user-token", BaseURL: baseURL},
	})
	pub, err := newXPublisher(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newXPublisher: %v", err)
	}
	return pub
}

func TestXPublishWithMedia(t *testing.T) {
	var tweet xTweetRequest
	var uploaded bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			t.Errorf("missing bearer token on %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/2/media/upload":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if r.FormValue("media_category") != "tweet_image" {
				t.Errorf("media_category = %q", r.FormValue("media_category"))
			}
			if _, _, err := r.FormFile("media"); err != nil {
				t.Errorf("media part missing: %v", err)
			}
			uploaded = true
			_, _ = w.Write([]byte(`{"data":{"id":"m-1"}}`))
		case "/2/tweets":
			_ = json.NewDecoder(r.Body).Decode(&tweet)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"id":"1789","text":"ok"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	msg := sampleMessage()
	msg.Image = &domain.ImageAsset{Data: []byte{0xff, 0xd8}, MimeType: "image/jpeg", Name: "zero-trust.jpg"}
	ref, err := newTestX(t, srv.URL).Publish(context.Background(), msg)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ref != "https://x.com/i/web/status/1789" {
		t.Fatalf("ref = %q", ref)
	}
	if !uploaded || tweet.Media == nil || len(tweet.Media.MediaIDs) != 1 || tweet.Media.MediaIDs[0] != "m-1" {
		t.Fatalf("media not attached: %+v", tweet)
	}
	if tweet.Text != msg.Text {
		t.Fatalf("text = %q", tweet.Text)
	}
}

func TestXPublishTextOnlyWhenMediaUploadFails(t *testing.T) {
	var tweet xTweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2/media/upload" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&tweet)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer srv.Close()

	msg := sampleMessage()
	msg.Image = &domain.ImageAsset{Data: []byte{1}, MimeType: "image/jpeg"}
	if _, err := newTestX(t, srv.URL).Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if tweet.Media != nil {
		t.Fatalf("expected text-only post")
	}
}

func TestXPublishClassifiesFailures(t *testing.T) {
	cases := []struct {
		status int
		want   domain.ErrorKind
	}{
		{http.StatusForbidden, domain.KindAuth},
		{http.StatusTooManyRequests, domain.KindTransient},
		{http.StatusBadRequest, domain.KindRejected},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"title":"error"}`))
		}))
		_, err := newTestX(t, srv.URL).Publish(context.Background(), sampleMessage())
		srv.Close()
		if domain.KindOf(err) != tc.want {
			t.Fatalf("status %d: kind = %v, want %v", tc.status, domain.KindOf(err), tc.want)
		}
	}
}
