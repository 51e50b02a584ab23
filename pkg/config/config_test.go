package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name    string `yaml:"name"`
	Workers int    `yaml:"workers"`
}

func (s *sample) Validate() error {
	if s.Workers < 1 {
		return errors.New("workers must be positive")
	}
	return nil
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("KEYSHIFT_TEST_NAME", "expanded")
	p := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(p, []byte("name: ${KEYSHIFT_TEST_NAME}\nworkers: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "expanded" || s.Workers != 3 {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.yaml")
	_ = os.WriteFile(p, []byte("workers: 0\n"), 0o644)
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadIfExists(t *testing.T) {
	s := sample{Name: "default", Workers: 2}
	found, err := LoadIfExists(filepath.Join(t.TempDir(), "missing.yaml"), &s)
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}
	if s.Name != "default" {
		t.Errorf("defaults changed: %+v", s)
	}

	bad := sample{}
	if _, err := LoadIfExists(filepath.Join(t.TempDir(), "missing.yaml"), &bad); err == nil {
		t.Error("invalid defaults should fail validation")
	}
}
