package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func Test_Load_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Setenv(EnvSheetURL, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != defaultListen {
		t.Errorf("Listen = %q, want %q", cfg.Listen, defaultListen)
	}
	if cfg.EmbargoDays != 7 {
		t.Errorf("EmbargoDays = %d, want 7", cfg.EmbargoDays)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}
}

func Test_Load_ReadsYAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `listen: "0.0.0.0:9000"
timezone: "UTC"
sheet_url: "https://docs.google.com/spreadsheets/d/abc/edit#gid=0"
image_folder: "/photos/"
embargo_days: 3
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvSheetURL, "https://example.com/sheet/pubhtml")
	t.Setenv(EnvListen, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.SheetURL != "https://example.com/sheet/pubhtml" {
		t.Errorf("SheetURL = %q, env override not applied", cfg.SheetURL)
	}
	if cfg.ImageFolder != "photos" {
		t.Errorf("ImageFolder = %q, want trimmed %q", cfg.ImageFolder, "photos")
	}
	if cfg.ImagesDir != "./photos" {
		t.Errorf("ImagesDir = %q", cfg.ImagesDir)
	}
	if cfg.EmbargoDays != 3 {
		t.Errorf("EmbargoDays = %d", cfg.EmbargoDays)
	}
	if cfg.FetchTimeout() != 30*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout())
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location = %v", cfg.Location())
	}
}

func Test_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "ok", cfg: Config{SheetURL: "https://x", Timezone: "UTC"}},
		{name: "missing url", cfg: Config{Timezone: "UTC"}, wantErr: true},
		{name: "bad zone", cfg: Config{SheetURL: "https://x", Timezone: "Mars/Olympus"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
