package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNewConfigManager(t *testing.T) {
	manager := NewConfigManager()
	if manager == nil {
		t.Fatal("NewConfigManager() returned nil")
	}
	if manager.viper == nil {
		t.Fatal("ConfigManager.viper is nil")
	}
}

func TestConfigManager_LoadDefaults(t *testing.T) {
	config, err := LoadDefaultConfig()
	if err != nil {
		t.Fatalf("LoadDefaultConfig() error = %v", err)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected default log_level=info, got: %s", config.LogLevel)
	}
	if config.LogFormat != "text" {
		t.Errorf("Expected default log_format=text, got: %s", config.LogFormat)
	}
	if config.Resolver.Sysroot != "" {
		t.Errorf("Expected empty default sysroot, got: %s", config.Resolver.Sysroot)
	}
	if config.Resolver.CrossCheck {
		t.Error("Expected cross_check disabled by default")
	}
	if config.Resolver.PreferSysroot {
		t.Error("Expected prefer_sysroot disabled by default")
	}
}

func TestConfigManager_LoadFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
log_level: debug
log_format: json
resolver:
  sysroot: /opt/cross
  default_dirs: ["/opt/cross/lib", "/opt/cross/usr/lib"]
  ld_path: /extra/lib:/more/lib
  arch: arm64
  cross_check: true
  prefer_sysroot: true
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}

	if config.LogLevel != "debug" {
		t.Errorf("Expected log_level=debug, got: %s", config.LogLevel)
	}
	if config.LogFormat != "json" {
		t.Errorf("Expected log_format=json, got: %s", config.LogFormat)
	}
	if config.Resolver.Sysroot != "/opt/cross" {
		t.Errorf("Expected sysroot=/opt/cross, got: %s", config.Resolver.Sysroot)
	}
	if config.Resolver.Arch != "arm64" {
		t.Errorf("Expected arch=arm64, got: %s", config.Resolver.Arch)
	}
	if !config.Resolver.CrossCheck {
		t.Error("Expected cross_check=true")
	}
	if !config.Resolver.PreferSysroot {
		t.Error("Expected prefer_sysroot=true")
	}
	wantDirs := []string{"/opt/cross/lib", "/opt/cross/usr/lib"}
	if !reflect.DeepEqual(config.Resolver.DefaultDirs, wantDirs) {
		t.Errorf("Expected default_dirs=%v, got: %v", wantDirs, config.Resolver.DefaultDirs)
	}
}

func TestConfigManager_LoadFromEnv(t *testing.T) {
	os.Setenv("PKGLINK_LOG_LEVEL", "error")
	os.Setenv("PKGLINK_LOG_FORMAT", "json")
	os.Setenv("PKGLINK_RESOLVER_ARCH", "x86_64")
	defer func() {
		os.Unsetenv("PKGLINK_LOG_LEVEL")
		os.Unsetenv("PKGLINK_LOG_FORMAT")
		os.Unsetenv("PKGLINK_RESOLVER_ARCH")
	}()

	config, err := LoadDefaultConfig()
	if err != nil {
		t.Fatalf("LoadDefaultConfig() error = %v", err)
	}

	if config.LogLevel != "error" {
		t.Errorf("Expected log_level=error from env, got: %s", config.LogLevel)
	}
	if config.LogFormat != "json" {
		t.Errorf("Expected log_format=json from env, got: %s", config.LogFormat)
	}
	if config.Resolver.Arch != "x86_64" {
		t.Errorf("Expected arch=x86_64 from env, got: %s", config.Resolver.Arch)
	}
}

func TestConfigManager_MissingFileFallsBack(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such.yaml")
	config, err := LoadConfigFromFile(missing)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected defaults for missing file, got log_level: %s", config.LogLevel)
	}
}

func TestConfigValidation_InvalidLogLevel(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("log_level: loud\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfigFromFile(configFile)
	if err == nil {
		t.Error("Expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected error message to contain 'invalid log level', got: %s", err.Error())
	}
}

func TestConfigValidation_InvalidLogFormat(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("log_format: xml\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfigFromFile(configFile)
	if err == nil {
		t.Error("Expected error for invalid log_format, got nil")
	}
}

func TestConfigValidation_ExpandsSysroot(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("resolver:\n  sysroot: cross/root\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}
	if !filepath.IsAbs(config.Resolver.Sysroot) {
		t.Errorf("Expected sysroot expanded to an absolute path, got: %s", config.Resolver.Sysroot)
	}
}

func TestLDPathEntries(t *testing.T) {
	tests := []struct {
		name   string
		ldPath string
		want   []string
	}{
		{
			name:   "empty",
			ldPath: "",
			want:   nil,
		},
		{
			name:   "single entry",
			ldPath: "/opt/lib",
			want:   []string{"/opt/lib"},
		},
		{
			name:   "multiple entries",
			ldPath: "/opt/lib:/usr/local/lib",
			want:   []string{"/opt/lib", "/usr/local/lib"},
		},
		{
			name:   "empty entries dropped",
			ldPath: ":/opt/lib::",
			want:   []string{"/opt/lib"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ResolverConfig{LDPath: tt.ldPath}
			got := cfg.LDPathEntries()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LDPathEntries() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	slice := []string{"a", "b", "c"}

	tests := []struct {
		item string
		want bool
	}{
		{"a", true},
		{"b", true},
		{"c", true},
		{"d", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.item, func(t *testing.T) {
			got := contains(slice, tt.item)
			if got != tt.want {
				t.Errorf("contains() = %v, want %v", got, tt.want)
			}
		})
	}
}
