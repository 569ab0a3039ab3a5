package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/config"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/imaging"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/ledger"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/media"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/storage"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/cms"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/generator"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/imagehost"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/publishers"
)

// Runtime owns the concrete backends behind a Pipeline and releases them on
// Close.
type Runtime struct {
	cfg      *config.Config
	pipeline *Pipeline
	fanout   *publishers.Fanout
	store    storage.Store
	log      logger.Logger
}

// NewRuntime builds every collaborator from config and wires the pipeline.
func NewRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt := &Runtime{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	storePath := cfg.BBoltPath
	if cfg.StorageType == "sqlite" {
		storePath = cfg.SQLitePath
	}
	store, err := openStore(cfg.StorageType, storePath, cfg.LedgerTTL(), log)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	rt.store = store
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":           cfg.StorageType,
		"path":           storePath,
		"ttl_days":       cfg.LedgerTTLDays,
		"similarity":     cfg.LedgerSimilarity,
		"recent_checked": cfg.LedgerRecent,
	})
	topics := ledger.New(store, log, ledger.Options{Similarity: cfg.LedgerSimilarity, Recent: cfg.LedgerRecent})

	client := httpclient.NewRestyClient(cfg.GenerateTimeout)
	content, err := generator.NewContentGenerator(generator.ContentConfig{
		BaseURL:      cfg.OpenAIBaseURL,
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.ChatModel,
		Niche:        cfg.GenerationPrompt,
		LabelPool:    cfg.LabelPool,
		AvoidPhrases: cfg.AvoidPhrases,
		Signature:    cfg.SignatureHTML,
	}, client)
	if err != nil {
		return nil, fmt.Errorf("content generator: %w", err)
	}
	imageGen, err := generator.NewImageGenerator(generator.ImageConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.ImageModel,
		Size:    cfg.ImageSize,
	}, httpclient.NewRestyClient(cfg.ImageGenTimeout))
	if err != nil {
		return nil, fmt.Errorf("image generator: %w", err)
	}

	pool, err := imaging.NewFallbackPool(cfg.FallbackDir)
	if err != nil {
		return nil, fmt.Errorf("load fallback pool: %w", err)
	}
	if pool.Len() == 0 {
		log.WarnObj("fallback pool is empty; a failed generation will abort the run", "fallback_dir", cfg.FallbackDir)
	}
	acquirer := imaging.NewAcquirer(imageGen, pool, imaging.AcquirerOptions{
		Attempts: cfg.ImageGenAttempts,
		Timeout:  cfg.ImageGenTimeout,
	}, log)
	normalizer := imaging.NewNormalizer(cfg.ImageMinQuality)

	host, err := imagehost.New(ctx, imagehost.Config{
		Type:     cfg.ImageHostType,
		Attempts: cfg.ImageHostAttempts,
		S3: imagehost.S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Prefix:        cfg.S3Prefix,
			Endpoint:      cfg.S3Endpoint,
			PathStyle:     cfg.S3PathStyle,
			PublicBaseURL: cfg.S3PublicBaseURL,
		},
		GDrive: imagehost.GDriveConfig{
			CredentialsFile: cfg.DriveCredentials,
			FolderID:        cfg.DriveFolderID,
		},
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init image host: %w", err)
	}

	publisher, err := cms.New(ctx, cms.Config{
		Type:    cfg.CMSType,
		Timeout: cfg.CMSTimeout(),
		Blogger: cms.BloggerConfig{
			BlogID:          cfg.BloggerBlogID,
			CredentialsFile: cfg.BloggerCredentialsFile,
			TokenFile:       cfg.BloggerTokenFile,
		},
		HTTP: cms.HTTPConfig{URL: cfg.CMSHTTPURL, Token: cfg.CMSHTTPToken},
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init cms: %w", err)
	}

	fanout, err := buildFanout(ctx, cfg.TargetsFile, normalizer, log)
	if err != nil {
		return nil, err
	}
	rt.fanout = fanout

	var archive MediaArchive
	if a := media.NewArchive(cfg.MediaDir, cfg.MediaRetention(), log); a.Enabled() {
		archive = a
	}

	pipeline, err := NewPipeline(Deps{
		Generator:  content,
		Ledger:     topics,
		Images:     acquirer,
		Normalizer: normalizer,
		Host:       host,
		CMS:        publisher,
		Promoter:   fanout,
		Archive:    archive,
	}, PipelineOptions{
		TopicRetries:     cfg.TopicRetries,
		GenerateAttempts: cfg.GenerateAttempts,
		GenerateTimeout:  cfg.GenerateTimeout,
		AvoidRecent:      cfg.LedgerRecent,
		Constraints:      cfg.ImageConstraints(),
	}, log)
	if err != nil {
		return nil, err
	}
	rt.pipeline = pipeline

	ok = true
	return rt, nil
}

// openStore opens the ledger store. A held lock or an unknown type is fatal;
// any other open failure degrades to an empty in-memory ledger so the run
// still publishes.
func openStore(typ, path string, ttl time.Duration, log logger.Logger) (storage.Store, error) {
	store, err := storage.NewStore(typ, path, storage.Options{TopicTTL: ttl})
	if err == nil {
		return store, nil
	}
	if errors.Is(err, storage.ErrLocked) || errors.Is(err, storage.ErrUnsupported) {
		return nil, err
	}
	log.WarnObj("ledger store unreadable, continuing with an empty ledger", "storage_fallback", map[string]any{
		"type":  typ,
		"path":  path,
		"error": err.Error(),
	})
	return storage.NewMemoryStore(), nil
}

// buildFanout loads the targets file. A missing file disables promotion.
func buildFanout(ctx context.Context, path string, normalizer publishers.Normalizer, log logger.Logger) (*publishers.Fanout, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.WarnObj("targets file not found; social promotion disabled", "targets_file", path)
		return publishers.NewFanout(nil, normalizer, log), nil
	}

	targetReg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load targets registry: %w", err)
	}
	enabled := targetReg.Enabled()

	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build targets: %w", err)
	}
	summaries := make([]map[string]string, 0, len(enabled))
	for _, t := range enabled {
		summaries = append(summaries, map[string]string{
			"id":    t.ID,
			"type":  t.Type,
			"style": t.Style,
		})
	}
	fanout := publishers.NewFanout(pubs, normalizer, log)
	log.InfoObj("targets registry loaded", "targets_meta", map[string]any{
		"count":   fanout.Size(),
		"targets": summaries,
	})
	return fanout, nil
}

// Run executes one bounded pipeline pass.
func (r *Runtime) Run(ctx context.Context) domain.RunResult {
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}
	return r.pipeline.Run(ctx)
}

// Close releases the target connections and the ledger store.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if err := r.fanout.Close(); err != nil {
		r.log.ErrorObj("targets close failed", "error", err)
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.ErrorObj("storage close failed", "error", err)
		}
	}
}
