package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/config"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/storage"
)

func runtimeConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		TargetsFile:       filepath.Join(dir, "missing-targets.yaml"),
		RunTimeout:        time.Second,
		StorageType:       "bbolt",
		BBoltPath:         filepath.Join(dir, "ledger.db"),
		LedgerSimilarity:  0.8,
		LedgerRecent:      10,
		TopicRetries:      1,
		OpenAIAPIKey:      "test-key",
		OpenAIBaseURL:     "http://127.0.0.1:1",
		GenerateAttempts:  1,
		GenerateTimeout:   time.Second,
		ImageGenAttempts:  1,
		ImageGenTimeout:   time.Second,
		FallbackDir:       filepath.Join(dir, "fallback"),
		ImageMinQuality:   20,
		ImageHostType:     "s3",
		S3Bucket:          "blog-images",
		S3Region:          "us-east-1",
		CMSType:           "http",
		CMSTimeoutSeconds: 5,
		CMSHTTPURL:        "http://127.0.0.1:1/posts",
	}
}

func TestNewRuntimeFallsBackWhenLedgerIsCorrupt(t *testing.T) {
	cfg := runtimeConfig(t)
	if err := os.WriteFile(cfg.BBoltPath, bytes.Repeat([]byte{0x5A}, 100), 0o600); err != nil {
		t.Fatalf("write garbage ledger: %v", err)
	}

	rt, err := NewRuntime(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRuntime with corrupt ledger: %v", err)
	}
	defer rt.Close()

	if rt == nil || rt.pipeline == nil {
		t.Fatalf("expected a usable runtime")
	}
	if _, ok := rt.store.(*storage.MemoryStore); !ok {
		t.Fatalf("expected in-memory ledger fallback, got %T", rt.store)
	}
}

func TestNewRuntimeFailsWhenLedgerIsLocked(t *testing.T) {
	cfg := runtimeConfig(t)
	held, err := storage.NewStore("bbolt", cfg.BBoltPath, storage.Options{})
	if err != nil {
		t.Fatalf("open held store: %v", err)
	}
	defer held.Close()

	rt, err := NewRuntime(context.Background(), cfg, nil)
	if err == nil {
		rt.Close()
		t.Fatalf("expected startup to fail while another run holds the ledger")
	}
	if !errors.Is(err, storage.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestOpenStoreRejectsUnknownType(t *testing.T) {
	if _, err := openStore("redis", "x", 0, nil); !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
