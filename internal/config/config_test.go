package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if cfg.CDPPort != 9222 {
		t.Fatalf("CDPPort = %d; want 9222", cfg.CDPPort)
	}
	if cfg.BaseURL != "https://outlierdb.com" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.ScrollStepPx != 300 {
		t.Fatalf("ScrollStepPx = %d; want 300", cfg.ScrollStepPx)
	}
	if cfg.NoProgressThreshold != 10 {
		t.Fatalf("NoProgressThreshold = %d; want 10", cfg.NoProgressThreshold)
	}
	if cfg.ContainerSelector != "main" {
		t.Fatalf("ContainerSelector = %q; want main", cfg.ContainerSelector)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9222" {
		t.Fatalf("CDPURL() = %q", cfg.CDPURL())
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("SCRAPER_SCROLL_STEP_PX", "150")
	t.Setenv("SCRAPER_EVAL_TIMEOUT_MS", "10")
	t.Setenv("SCRAPER_NO_PROGRESS_THRESHOLD", "-1")
	t.Setenv("SCRAPER_DUMP_HTML", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("CDPPort = %d; want 9333", cfg.CDPPort)
	}
	if cfg.ScrollStepPx != 150 {
		t.Fatalf("ScrollStepPx = %d; want 150", cfg.ScrollStepPx)
	}
	if cfg.EvalTimeoutMS != 1000 {
		t.Fatalf("EvalTimeoutMS = %d; want clamped to 1000", cfg.EvalTimeoutMS)
	}
	if cfg.NoProgressThreshold != 10 {
		t.Fatalf("NoProgressThreshold = %d; want clamped default 10", cfg.NoProgressThreshold)
	}
	if !cfg.DumpHTML {
		t.Fatal("DumpHTML = false; want true")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("ODB_TEST_INT", "not-a-number")
	if got := getEnvIntOrDefault("ODB_TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvIntOrDefault = %d; want 7", got)
	}
	t.Setenv("ODB_TEST_BOOL", "junk")
	if got := getEnvBoolOrDefault("ODB_TEST_BOOL", true); got != true {
		t.Fatalf("getEnvBoolOrDefault = %v; want true", got)
	}
}
