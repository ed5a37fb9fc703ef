package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/directory"
)

// GetDataDir resolves the base directory for file-backed directories. It
// checks DIRSIM_DIR first, then XDG paths, and finally falls back to the
// user's home directory.
func GetDataDir() string {
	if explicit := os.Getenv("DIRSIM_DIR"); explicit != "" {
		return explicit
	}

	xdg.Reload()

	dataHome := xdg.DataHome
	if dataHome == "" {
		home := xdg.Home
		if home == "" {
			var err error
			home, err = os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "dirsim")
			}
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(dataHome, "dirsim")
}

// GetDirectoriesDir returns the directory holding one database file per
// named directory.
func GetDirectoriesDir() string {
	return filepath.Join(GetDataDir(), "directories")
}

// GetDirectoryPath returns the database file used by the named directory.
func GetDirectoryPath(name string) string {
	return filepath.Join(GetDirectoriesDir(), SanitizeName(name)+".db")
}

// SanitizeName makes a directory name safe to use as a file name.
func SanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ".", "-", ":", "-", " ", "_")
	sanitized := replacer.Replace(strings.TrimSpace(name))
	if sanitized == "" {
		return "default"
	}
	return sanitized
}

// Config is everything read from the environment.
type Config struct {
	Engine         directory.Config
	DefaultStorage database.StorageMode
	// Storage overrides DefaultStorage per directory name.
	Storage map[string]database.StorageMode
}

// StorageFor returns the storage mode of the named directory.
func (c Config) StorageFor(name string) database.StorageMode {
	if mode, ok := c.Storage[name]; ok {
		return mode
	}
	if c.DefaultStorage == "" {
		return database.StorageMemory
	}
	return c.DefaultStorage
}

// Default returns the configuration used when the environment is empty.
func Default() Config {
	return Config{
		Engine:         directory.DefaultConfig(),
		DefaultStorage: database.StorageMemory,
		Storage:        map[string]database.StorageMode{},
	}
}

// Load reads envFile when it is not empty and then builds the configuration
// from the process environment. Variables already set in the environment
// win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()

	if v, ok := os.LookupEnv("DIRSIM_STRUCTURAL_ATTRIBUTES"); ok {
		cfg.Engine.StructuralAttributes = splitList(v)
	}
	if v, ok := os.LookupEnv("DIRSIM_VIRTUAL_ATTRIBUTES"); ok {
		pairs, err := parseVirtualAttributes(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Engine.VirtualAttributes = pairs
	}
	if v, ok := os.LookupEnv("DIRSIM_REFERENCE_ATTRIBUTES"); ok {
		cfg.Engine.ReferenceAttributes = splitList(v)
	}
	if v, ok := os.LookupEnv("DIRSIM_ANR_ATTRIBUTES"); ok {
		cfg.Engine.ANRAttributes = splitList(v)
	}
	if v := os.Getenv("DIRSIM_STORAGE"); v != "" {
		mode, err := database.ParseStorageMode(v)
		if err != nil {
			return Config{}, fmt.Errorf("DIRSIM_STORAGE: %w", err)
		}
		cfg.DefaultStorage = mode
	}
	if v := os.Getenv("DIRSIM_DIRECTORIES"); v != "" {
		for _, item := range splitList(v) {
			name, value, ok := strings.Cut(item, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return Config{}, fmt.Errorf("DIRSIM_DIRECTORIES: expected name=mode, got %q", item)
			}
			mode, err := database.ParseStorageMode(value)
			if err != nil {
				return Config{}, fmt.Errorf("DIRSIM_DIRECTORIES: %w", err)
			}
			cfg.Storage[strings.TrimSpace(name)] = mode
		}
	}

	return cfg, nil
}

func parseVirtualAttributes(value string) ([]directory.VirtualAttribute, error) {
	var pairs []directory.VirtualAttribute
	for _, item := range splitList(value) {
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("DIRSIM_VIRTUAL_ATTRIBUTES: expected forward:reverse[:rename], got %q", item)
		}
		pair := directory.VirtualAttribute{
			Forward: strings.TrimSpace(parts[0]),
			Reverse: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			if strings.TrimSpace(parts[2]) != "rename" {
				return nil, fmt.Errorf("DIRSIM_VIRTUAL_ATTRIBUTES: unknown flag %q in %q", parts[2], item)
			}
			pair.RewriteOnRename = true
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
