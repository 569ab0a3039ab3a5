// Package publishers fans a published post out to social platforms and
// message sinks, one independent delivery per configured target.
package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

const (
	// Supported target types.
	TypeBluesky = "bluesky"
	TypeX       = "x"
	TypeHTTP    = "http"
	TypeSQS     = "sqs"
	TypeSNS     = "sns"
	TypePubSub  = "pubsub"

	httpDefaultMethod     = "POST"
	defaultTimeoutSeconds = 15

	blueskyDefaultPDS    = "https://bsky.social"
	xDefaultBaseURL      = "https://api.x.com"
	blueskyMaxImageBytes = 976 * 1024
	blueskyMaxImageSide  = 720
)

// configFile represents the structure of the targets configuration file.
type configFile struct {
	Targets []PublisherConfig `json:"targets" yaml:"targets"`
}

// PublisherConfig represents a single target entry declared in config files.
type PublisherConfig struct {
	ID             string                  `json:"id" yaml:"id"`
	Type           string                  `json:"type" yaml:"type"`
	Enabled        *bool                   `json:"enabled" yaml:"enabled"`
	Style          string                  `json:"style" yaml:"style"`
	TimeoutSeconds int                     `json:"timeout_seconds" yaml:"timeout_seconds"`
	Media          *bool                   `json:"media" yaml:"media"`
	Limits         domain.Limits           `json:"limits" yaml:"limits"`
	Bluesky        *BlueskyPublisherConfig `json:"bluesky" yaml:"bluesky"`
	X              *XPublisherConfig       `json:"x" yaml:"x"`
	HTTP           *HTTPPublisherConfig    `json:"http" yaml:"http"`
	SQS            *SQSPublisherConfig     `json:"sqs" yaml:"sqs"`
	SNS            *SNSPublisherConfig     `json:"sns" yaml:"sns"`
	PubSub         *PubSubPublisherConfig  `json:"pubsub" yaml:"pubsub"`
}

// BlueskyPublisherConfig holds AT Protocol account settings.
type BlueskyPublisherConfig struct {
	Handle      string `json:"handle" yaml:"handle"`
	AppPassword string `json:"app_password" yaml:"app_password"`
	PDS         string `json:"pds" yaml:"pds"`
}

// XPublisherConfig holds X API v2 settings. The bearer token must be a
// user-context token allowed to post.
type XPublisherConfig struct {
	BearerToken string `json:"bearer_token" yaml:"bearer_token"`
	BaseURL     string `json:"base_url" yaml:"base_url"`
}

// HTTPPublisherConfig holds generic webhook settings.
type HTTPPublisherConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method" yaml:"method"`
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// SQSPublisherConfig holds AWS SQS specific settings.
type SQSPublisherConfig struct {
	QueueURL string `json:"uri" yaml:"uri"`
	Region   string `json:"region" yaml:"region"`
}

// SNSPublisherConfig holds AWS SNS specific settings.
type SNSPublisherConfig struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
	Region   string `json:"region" yaml:"region"`
}

// PubSubPublisherConfig holds GCP Pub/Sub settings.
type PubSubPublisherConfig struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	Topic     string `json:"topic" yaml:"topic"`
}

// ConfigRegistry materializes target definitions loaded from config files.
type ConfigRegistry struct {
	mu      sync.RWMutex
	targets []PublisherConfig
	idx     map[string]PublisherConfig
}

// LoadRegistry loads the target registry from a YAML/JSON file.
// ${VAR} references are expanded from the environment before decoding.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("targets file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	raw = []byte(os.ExpandEnv(string(raw)))

	fileReg, err := parseTargetRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Targets) == 0 {
		return nil, errors.New("targets file contains no targets entries")
	}

	reg := &ConfigRegistry{
		targets: make([]PublisherConfig, len(fileReg.Targets)),
		idx:     make(map[string]PublisherConfig, len(fileReg.Targets)),
	}

	for i := range fileReg.Targets {
		cfg := sanitizePublisherConfig(fileReg.Targets[i])
		if err := validatePublisherConfig(cfg); err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate target id %q", cfg.ID)
		}
		reg.targets[i] = cfg
		reg.idx[cfg.ID] = cfg
	}

	return reg, nil
}

// parseTargetRegistry attempts to decode the targets file content.
func parseTargetRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		reg, err := unmarshalTargetRegistry(d.name, data, d.fn)
		if err == nil {
			return reg, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return configFile{}, lastErr
	}
	return configFile{}, errors.New("targets file format not recognized (expected YAML or JSON)")
}

func unmarshalTargetRegistry(name string, data []byte, fn func([]byte, any) error) (configFile, error) {
	var reg configFile
	if err := fn(data, &reg); err != nil {
		return configFile{}, fmt.Errorf("decode %s targets: %w", name, err)
	}
	return reg, nil
}

// sanitizePublisherConfig trims fields and fills per-type defaults.
func sanitizePublisherConfig(cfg PublisherConfig) PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	cfg.Style = strings.ToLower(strings.TrimSpace(cfg.Style))

	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	applyTypeDefaults(&cfg)

	if cfg.Bluesky != nil {
		c := *cfg.Bluesky
		c.Handle = strings.TrimPrefix(strings.TrimSpace(c.Handle), "@")
		c.AppPassword = strings.TrimSpace(c.AppPassword)
		c.PDS = strings.TrimRight(strings.TrimSpace(c.PDS), "/")
		if c.PDS == "" {
			c.PDS = blueskyDefaultPDS
		}
		cfg.Bluesky = &c
	}
	if cfg.X != nil {
		c := *cfg.X
		c.BearerToken = strings.TrimSpace(c.BearerToken)
		c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
		if c.BaseURL == "" {
			c.BaseURL = xDefaultBaseURL
		}
		cfg.X = &c
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		cfg.HTTP = &c
	}
	if cfg.SQS != nil {
		c := *cfg.SQS
		c.QueueURL = strings.TrimSpace(c.QueueURL)
		c.Region = strings.TrimSpace(c.Region)
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := *cfg.SNS
		c.TopicARN = strings.TrimSpace(c.TopicARN)
		c.Region = strings.TrimSpace(c.Region)
		cfg.SNS = &c
	}
	if cfg.PubSub != nil {
		c := *cfg.PubSub
		c.ProjectID = strings.TrimSpace(c.ProjectID)
		c.Topic = strings.TrimSpace(c.Topic)
		cfg.PubSub = &c
	}

	return cfg
}

// applyTypeDefaults fills limits, style and media for known platforms. Explicit
// values in the file always win.
func applyTypeDefaults(cfg *PublisherConfig) {
	media := false
	l := &cfg.Limits
	switch cfg.Type {
	case TypeBluesky:
		media = true
		setDefault(&l.MaxMessageLength, 300)
		setDefault(&l.HashtagLimit, 4)
		setDefault(&l.MaxBytes, blueskyMaxImageBytes)
		setDefault(&l.MaxWidth, blueskyMaxImageSide)
		setDefault(&l.MaxHeight, blueskyMaxImageSide)
	case TypeX:
		media = true
		setDefault(&l.MaxMessageLength, 280)
		setDefault(&l.HashtagLimit, 3)
		setDefault(&l.MaxBytes, 5*1024*1024)
	case TypeHTTP, TypeSQS, TypeSNS, TypePubSub:
		setDefault(&l.HashtagLimit, 4)
	}
	if cfg.Style == "" {
		cfg.Style = StyleHeadline
	}
	if cfg.Media == nil {
		cfg.Media = &media
	}
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validatePublisherConfig checks that required fields are present.
func validatePublisherConfig(cfg PublisherConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for target %q", cfg.ID)
	}
	if cfg.Style != StyleHeadline && cfg.Style != StyleTeaser {
		return fmt.Errorf("style %q is not supported for target %q", cfg.Style, cfg.ID)
	}
	switch cfg.Type {
	case TypeBluesky:
		if cfg.Bluesky == nil {
			return fmt.Errorf("bluesky config required for target %q", cfg.ID)
		}
		if cfg.Bluesky.Handle == "" || cfg.Bluesky.AppPassword == "" {
			return fmt.Errorf("bluesky.handle and bluesky.app_password are required for target %q", cfg.ID)
		}
	case TypeX:
		if cfg.X == nil || cfg.X.BearerToken == "" {
			return fmt.Errorf("x.bearer_token is required for target %q", cfg.ID)
		}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return fmt.Errorf("http config required for target %q", cfg.ID)
		}
		if cfg.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for target %q", cfg.ID)
		}
	case TypeSQS:
		if cfg.SQS == nil {
			return fmt.Errorf("sqs config required for target %q", cfg.ID)
		}
		if cfg.SQS.QueueURL == "" {
			return fmt.Errorf("sqs.uri is required for target %q", cfg.ID)
		}
		if cfg.SQS.Region == "" {
			return fmt.Errorf("sqs.region is required for target %q", cfg.ID)
		}
	case TypeSNS:
		if cfg.SNS == nil || cfg.SNS.TopicARN == "" {
			return fmt.Errorf("sns.topic_arn is required for target %q", cfg.ID)
		}
		if cfg.SNS.Region == "" {
			return fmt.Errorf("sns.region is required for target %q", cfg.ID)
		}
	case TypePubSub:
		if cfg.PubSub == nil || cfg.PubSub.ProjectID == "" || cfg.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic are required for target %q", cfg.ID)
		}
	}
	return nil
}

// byID returns the target config by id.
func (r *ConfigRegistry) byID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return PublisherConfig{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured targets.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PublisherConfig, len(r.targets))
	copy(out, r.targets)
	return out
}

// Enabled returns targets that are enabled.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	if r == nil {
		return nil
	}

	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]PublisherConfig, 0, len(all))
	for _, cfg := range all {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg PublisherConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// Spec derives the fanout behaviour for this target.
func (cfg PublisherConfig) Spec() TargetSpec {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	style := cfg.Style
	if style == "" {
		style = StyleHeadline
	}
	return TargetSpec{
		Limits:  cfg.Limits,
		Style:   style,
		Media:   cfg.Media != nil && *cfg.Media,
		Timeout: time.Duration(timeout) * time.Second,
	}
}
