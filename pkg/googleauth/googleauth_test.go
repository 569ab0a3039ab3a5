package googleauth

import (
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want domain.ErrorKind
	}{
		{&googleapi.Error{Code: http.StatusServiceUnavailable}, domain.KindTransient},
		{&googleapi.Error{Code: http.StatusTooManyRequests}, domain.KindTransient},
		{&googleapi.Error{Code: http.StatusForbidden, Message: "insufficient permissions"}, domain.KindAuth},
		{&googleapi.Error{Code: http.StatusBadRequest}, domain.KindRejected},
		{errors.New("connection reset by peer"), domain.KindTransient},
		{&oauth2.RetrieveError{}, domain.KindAuth},
	}
	for _, tc := range cases {
		if got := domain.KindOf(Classify("op", tc.err)); got != tc.want {
			t.Fatalf("Classify(%v) kind = %v, want %v", tc.err, got, tc.want)
		}
	}
	if Classify("op", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.RefreshToken != "r" || !got.Expiry.Equal(want.Expiry) {
		t.Fatalf("unexpected token %+v", got)
	}
}

func TestServiceAccountRequiresFile(t *testing.T) {
	if _, err := ServiceAccount(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := ServiceAccount(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
