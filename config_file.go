package lmsauth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadConfigFile decodes a TOML file over DefaultConfig. Durations are
// written as Go duration strings ("30m", "24h"). Key files named in the
// [token] table are resolved relative to the config file and read into the
// config. Unknown keys are rejected.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("decode %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	dir := filepath.Dir(path)
	if cfg.Token.PrivateKeyFile != "" {
		cfg.Token.PrivateKey, err = readKeyFile(dir, cfg.Token.PrivateKeyFile)
		if err != nil {
			return Config{}, err
		}
	}
	if cfg.Token.PublicKeyFile != "" {
		cfg.Token.PublicKey, err = readKeyFile(dir, cfg.Token.PublicKeyFile)
		if err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func readKeyFile(dir, name string) ([]byte, error) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return b, nil
}
