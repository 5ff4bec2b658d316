package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesSearchDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_PAGE_SIZE", "")
	t.Setenv("SEARCH_HYBRID_CANDIDATES", "")
	t.Setenv("SEARCH_SIMILARITY_THRESHOLD", "")
	t.Setenv("EMBEDDING_BATCH_SIZE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchPageSize != 50 {
		t.Fatalf("expected default page size 50, got %d", cfg.SearchPageSize)
	}
	if cfg.SearchHybridCandidates != 200 {
		t.Fatalf("expected default hybrid candidates 200, got %d", cfg.SearchHybridCandidates)
	}
	if cfg.SearchSimilarityThreshold != 0.3 {
		t.Fatalf("expected default similarity threshold 0.3, got %v", cfg.SearchSimilarityThreshold)
	}
	if cfg.EmbeddingBatchSize != 100 {
		t.Fatalf("expected default embedding batch 100, got %d", cfg.EmbeddingBatchSize)
	}
	if cfg.OpenAIChatModel != "gpt-4o-mini" || cfg.OpenAIEmbedModel != "text-embedding-3-small" {
		t.Fatalf("unexpected model defaults %q / %q", cfg.OpenAIChatModel, cfg.OpenAIEmbedModel)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_HYBRID_CANDIDATES", "120")
	t.Setenv("SEARCH_SIMILARITY_THRESHOLD", "0.45")
	t.Setenv("BACKFILL_LEASE_TTL", "90s")
	t.Setenv("OPENAPI_VALIDATION", "false")
	t.Setenv("SEARCH_PAGE_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchHybridCandidates != 120 {
		t.Fatalf("expected hybrid candidates 120, got %d", cfg.SearchHybridCandidates)
	}
	if cfg.SearchSimilarityThreshold != 0.45 {
		t.Fatalf("expected threshold 0.45, got %v", cfg.SearchSimilarityThreshold)
	}
	if cfg.BackfillLeaseTTL != 90*time.Second {
		t.Fatalf("expected lease ttl 90s, got %v", cfg.BackfillLeaseTTL)
	}
	if cfg.OpenAPIStrict {
		t.Fatalf("expected openapi validation disabled")
	}
	if cfg.SearchPageSize != 50 {
		t.Fatalf("expected fallback page size for invalid value, got %d", cfg.SearchPageSize)
	}
}

func TestLoadReadsYAMLFileBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.yaml")
	content := "SEARCH_DISPLAY_LIMIT: 25\nLLM_PROVIDER: ollama\nNATS_SUBJECT: from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_DISPLAY_LIMIT", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("NATS_SUBJECT", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchDisplayLimit != 25 {
		t.Fatalf("expected display limit from file, got %d", cfg.SearchDisplayLimit)
	}
	if cfg.LLMProvider != "ollama" {
		t.Fatalf("expected provider from file, got %q", cfg.LLMProvider)
	}
	if cfg.NATSSubject != "from-env" {
		t.Fatalf("environment must win over file, got %q", cfg.NATSSubject)
	}
}

func TestLoadFailsOnMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
