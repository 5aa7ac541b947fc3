package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/observable"
)

// SceneConfig declares the components a scene uses and how to run it.
type SceneConfig struct {
	Scene            string          `yaml:"scene"`
	Components       []ComponentSpec `yaml:"components"`
	Subscriptions    []string        `yaml:"subscriptions,omitempty"`
	MemoryLimitPages uint32          `yaml:"memory_limit_pages"`
	MaxBatchBytes    int             `yaml:"max_batch_bytes"`
	WASI             bool            `yaml:"wasi"`
}

// ComponentSpec registers one scene-specific component.
type ComponentSpec struct {
	Name   string `yaml:"name"`
	Codec  string `yaml:"codec"`
	Schema string `yaml:"schema,omitempty"`
	ID     uint32 `yaml:"id"`
}

const (
	codecRaw    = "raw"
	codecJSON   = "json"
	codecStruct = "struct"
)

func defaultSceneConfig() SceneConfig {
	return SceneConfig{
		Scene:            "scene",
		MemoryLimitPages: 256,
		MaxBatchBytes:    16 << 20,
	}
}

// LoadSceneConfig reads a scene file. An empty path yields the defaults.
func LoadSceneConfig(path string) (SceneConfig, error) {
	cfg := defaultSceneConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *SceneConfig) normalize() {
	c.Scene = strings.TrimSpace(c.Scene)
	for i := range c.Components {
		c.Components[i].Name = strings.TrimSpace(c.Components[i].Name)
		c.Components[i].Codec = strings.ToLower(strings.TrimSpace(c.Components[i].Codec))
		if c.Components[i].Codec == "" {
			c.Components[i].Codec = codecRaw
		}
	}
}

// Validate checks the scene file without building anything.
func (c SceneConfig) Validate() error {
	if c.Scene == "" {
		return fmt.Errorf("scene name is required")
	}
	seen := make(map[uint32]bool, len(c.Components))
	for _, comp := range c.Components {
		if comp.ID == 0 {
			return fmt.Errorf("component %q: id is required", comp.Name)
		}
		if seen[comp.ID] {
			return fmt.Errorf("component %d declared twice", comp.ID)
		}
		seen[comp.ID] = true
		switch comp.Codec {
		case codecRaw, codecStruct:
			if comp.Schema != "" {
				return fmt.Errorf("component %d: schema requires the json codec", comp.ID)
			}
		case codecJSON:
		default:
			return fmt.Errorf("component %d: unknown codec %q", comp.ID, comp.Codec)
		}
	}
	known := make(map[string]bool, len(observable.AllEvents))
	for _, id := range observable.AllEvents {
		known[string(id)] = true
	}
	for _, s := range c.Subscriptions {
		if !known[s] {
			return fmt.Errorf("unknown subscription %q", s)
		}
	}
	return nil
}

// Registry builds a component registry holding the well-known components
// and every declared one.
func (c SceneConfig) Registry() (*component.Registry, error) {
	reg := component.NewRegistry()
	if err := component.RegisterWellKnown(reg); err != nil {
		return nil, err
	}
	for _, comp := range c.Components {
		codec, err := comp.codec()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(scenebridge.ComponentID(comp.ID), comp.Name, codec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (s ComponentSpec) codec() (component.Codec, error) {
	switch s.Codec {
	case codecJSON:
		if s.Schema == "" {
			return component.NewJSONCodec[any](), nil
		}
		return component.NewJSONCodecWithSchema[any](s.Name, s.Schema)
	case codecStruct:
		return component.NewStructCodec(), nil
	default:
		return component.RawCodec{}, nil
	}
}

// SubscriptionRegistry returns the configured subscriptions, or every event
// when none are listed.
func (c SceneConfig) SubscriptionRegistry() *observable.Registry {
	if len(c.Subscriptions) == 0 {
		return observable.NewRegistry(observable.AllEvents...)
	}
	ids := make([]observable.EventID, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		ids[i] = observable.EventID(s)
	}
	return observable.NewRegistry(ids...)
}
