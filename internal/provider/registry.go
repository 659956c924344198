package provider

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Settings is the configuration of one provider rung.
type Settings struct {
	Name        string
	Type        string
	BaseURL     string
	APIKey      string
	SecretKey   string
	HTTPTimeout time.Duration
	Location    *time.Location
	Descriptor  Descriptor
}

// Builder constructs a Provider from settings.
type Builder func(s Settings) (Provider, error)

var (
	registry   = make(map[string]Builder)
	registryMu sync.RWMutex
)

// RegisterBuilder registers a provider constructor under typeName.
func RegisterBuilder(typeName string, builder Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupBuilder(typeName string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[strings.ToLower(strings.TrimSpace(typeName))]
	return b, ok
}

func init() {
	RegisterBuilder("polygon", func(s Settings) (Provider, error) {
		return NewPolygon(PolygonConfig{BaseURL: s.BaseURL, APIKey: s.APIKey, HTTPTimeout: s.HTTPTimeout, Location: s.Location})
	})
	RegisterBuilder("tiingo", func(s Settings) (Provider, error) {
		return NewTiingo(TiingoConfig{BaseURL: s.BaseURL, APIKey: s.APIKey, HTTPTimeout: s.HTTPTimeout, Location: s.Location})
	})
	RegisterBuilder("binance", func(s Settings) (Provider, error) {
		return NewBinance(BinanceConfig{RESTBaseURL: s.BaseURL, APIKey: s.APIKey, SecretKey: s.SecretKey, HTTPTimeout: s.HTTPTimeout}), nil
	})
}

// BuildEntries instantiates every configured provider.
func BuildEntries(settings []Settings) ([]Entry, error) {
	entries := make([]Entry, 0, len(settings))
	for _, s := range settings {
		builder, ok := lookupBuilder(s.Type)
		if !ok {
			return nil, fmt.Errorf("provider %s: unknown type %q", s.Name, s.Type)
		}
		p, err := builder(s)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", s.Name, err)
		}
		desc := s.Descriptor
		if desc.Name == "" {
			desc.Name = s.Name
		}
		entries = append(entries, Entry{Provider: p, Descriptor: desc})
	}
	return entries, nil
}

// BuildLadder instantiates the configured providers and orders them.
func BuildLadder(cfg LadderConfig, settings []Settings) (*Ladder, error) {
	entries, err := BuildEntries(settings)
	if err != nil {
		return nil, err
	}
	return NewLadder(cfg, entries...)
}
