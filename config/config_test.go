package config

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("DRIFTFM_TEST_STR", "hello")
	t.Setenv("DRIFTFM_TEST_INT", "42")
	t.Setenv("DRIFTFM_TEST_BOOL", "false")
	t.Setenv("DRIFTFM_TEST_DUR", "90m")
	t.Setenv("DRIFTFM_TEST_BAD_INT", "not-a-number")

	if got := getEnv("DRIFTFM_TEST_STR", "fallback"); got != "hello" {
		t.Errorf("getEnv = %q, want hello", got)
	}
	if got := getEnv("DRIFTFM_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv fallback = %q", got)
	}
	if got := getEnvInt("DRIFTFM_TEST_INT", 7); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}
	if got := getEnvInt("DRIFTFM_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt with malformed value = %d, want fallback 7", got)
	}
	if got := getEnvBool("DRIFTFM_TEST_BOOL", true); got {
		t.Error("getEnvBool ignored an explicit false")
	}
	if got := getEnvDuration("DRIFTFM_TEST_DUR", time.Hour); got != 90*time.Minute {
		t.Errorf("getEnvDuration = %s, want 90m", got)
	}
	if got := getEnvDuration("DRIFTFM_TEST_MISSING", 3*time.Hour); got != 3*time.Hour {
		t.Errorf("getEnvDuration fallback = %s", got)
	}
}

func TestValidateStorage(t *testing.T) {
	full := Config{
		StorageEndpoint:  "minio.local:9000",
		StorageAccessKey: "key",
		StorageSecretKey: "secret",
		StorageBucket:    "audio",
	}
	if err := full.ValidateStorage(); err != nil {
		t.Errorf("complete config rejected: %v", err)
	}

	cases := []func(c *Config){
		func(c *Config) { c.StorageEndpoint = "" },
		func(c *Config) { c.StorageAccessKey = "" },
		func(c *Config) { c.StorageSecretKey = "" },
		func(c *Config) { c.StorageBucket = "" },
	}
	for i, blank := range cases {
		c := full
		blank(&c)
		if err := c.ValidateStorage(); err == nil {
			t.Errorf("case %d: incomplete config accepted", i)
		}
	}
}
