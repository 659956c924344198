package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvConfigPath names the environment variable that overrides the config path.
	EnvConfigPath = "CANDLECACHE_CONFIG"
	// envPrefix scopes per-key overrides, e.g. CANDLECACHE_STORE_DSN.
	envPrefix = "CANDLECACHE"
)

// Load reads path and every file it includes, decodes the merged tree and
// applies defaults for keys the files left unset. Keys present in the files
// can be overridden from the environment (store.dsn -> CANDLECACHE_STORE_DSN).
func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults(explicitKeys(v))
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decoderOptions maps the toml tags and accepts "90m"-style durations and
// quoted numbers.
func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "toml"
	dc.WeaklyTypedInput = true
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func mergeConfigFile(v *viper.Viper, path string) error {
	file, err := readConfigFile(path)
	if err != nil {
		return err
	}
	return v.MergeConfigMap(file.AllSettings())
}

func readConfigFile(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

// includeResolver flattens include chains depth first. Included files come
// before the file that includes them so the includer overrides them.
type includeResolver struct {
	done    map[string]bool
	visit   map[string]bool
	ordered []string
}

func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := &includeResolver{done: make(map[string]bool), visit: make(map[string]bool)}
	if err := r.walk(abs); err != nil {
		return nil, err
	}
	return r.ordered, nil
}

func (r *includeResolver) walk(path string) error {
	path = filepath.Clean(path)
	switch {
	case r.visit[path]:
		return fmt.Errorf("include cycle detected: %s", path)
	case r.done[path]:
		return nil
	}
	r.visit[path] = true
	includes, err := includeList(path)
	if err != nil {
		return fmt.Errorf("read includes of %s: %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.walk(inc); err != nil {
			return err
		}
	}
	delete(r.visit, path)
	r.done[path] = true
	r.ordered = append(r.ordered, path)
	return nil
}

// includeList returns the non-empty entries of the file's include key.
func includeList(path string) ([]string, error) {
	v, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	var items []string
	switch val := raw.(type) {
	case string:
		items = []string{val}
	case []string:
		items = val
	case []any:
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			items = append(items, str)
		}
	default:
		return nil, fmt.Errorf("include must be a string or a list of strings")
	}
	out := items[:0:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// explicitKeys records every leaf key the merged files set. List values
// such as providers count as one key.
func explicitKeys(v *viper.Viper) keySet {
	keys := make(keySet)
	for _, k := range v.AllKeys() {
		keys.mark(k)
	}
	return keys
}
