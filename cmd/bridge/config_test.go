package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/observable"
)

func TestLoadSceneConfig_Defaults(t *testing.T) {
	cfg, err := LoadSceneConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scene != "scene" || cfg.MemoryLimitPages != 256 || cfg.MaxBatchBytes != 16<<20 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadSceneConfig_File(t *testing.T) {
	cfg, err := LoadSceneConfig(filepath.Join("testdata", "scene.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scene != "plaza" {
		t.Errorf("scene = %q", cfg.Scene)
	}
	if cfg.MemoryLimitPages != 64 || cfg.MaxBatchBytes != 65536 {
		t.Errorf("limits = %d pages, %d bytes", cfg.MemoryLimitPages, cfg.MaxBatchBytes)
	}
	if len(cfg.Components) != 3 {
		t.Fatalf("components = %d", len(cfg.Components))
	}
	wantCodecs := []string{codecRaw, codecJSON, codecStruct}
	for i, c := range cfg.Components {
		if c.Codec != wantCodecs[i] {
			t.Errorf("component %d codec = %q, want %q", c.ID, c.Codec, wantCodecs[i])
		}
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	if !reg.Has(component.IDPlayerIdentityData) {
		t.Error("well-known components missing")
	}
	if got := reg.Name(5001); got != "plaza.door" {
		t.Errorf("Name(5001) = %q", got)
	}

	door := scenebridge.Key{Component: 5001}
	if _, err := reg.Deserialize(door, []byte(`{"open":true}`)); err != nil {
		t.Errorf("valid door rejected: %v", err)
	}
	if _, err := reg.Deserialize(door, []byte(`{"open":"yes"}`)); err == nil {
		t.Error("door violating schema accepted")
	}

	subs := cfg.SubscriptionRegistry()
	if !subs.Subscribed(observable.EventEnterScene) {
		t.Error("onEnterScene not subscribed")
	}
	if subs.Subscribed(observable.EventSceneReady) {
		t.Error("onSceneReady subscribed without being listed")
	}
}

func TestSceneConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    SceneConfig
		errHas string
	}{
		{
			name:   "missing scene",
			cfg:    SceneConfig{},
			errHas: "scene name",
		},
		{
			name: "missing id",
			cfg: SceneConfig{Scene: "s", Components: []ComponentSpec{
				{Name: "a", Codec: codecRaw},
			}},
			errHas: "id is required",
		},
		{
			name: "duplicate id",
			cfg: SceneConfig{Scene: "s", Components: []ComponentSpec{
				{ID: 5000, Name: "a", Codec: codecRaw},
				{ID: 5000, Name: "b", Codec: codecRaw},
			}},
			errHas: "declared twice",
		},
		{
			name: "unknown codec",
			cfg: SceneConfig{Scene: "s", Components: []ComponentSpec{
				{ID: 5000, Name: "a", Codec: "msgpack"},
			}},
			errHas: "unknown codec",
		},
		{
			name: "schema on raw",
			cfg: SceneConfig{Scene: "s", Components: []ComponentSpec{
				{ID: 5000, Name: "a", Codec: codecRaw, Schema: "{}"},
			}},
			errHas: "schema requires",
		},
		{
			name:   "unknown subscription",
			cfg:    SceneConfig{Scene: "s", Subscriptions: []string{"onJump"}},
			errHas: "unknown subscription",
		},
		{
			name: "valid",
			cfg: SceneConfig{Scene: "s", Components: []ComponentSpec{
				{ID: 5000, Name: "a", Codec: codecJSON},
			}, Subscriptions: []string{"onSceneReady"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.errHas == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errHas) {
				t.Fatalf("error = %v, want containing %q", err, tt.errHas)
			}
		})
	}
}

func TestLoadSceneConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadSceneConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("scene: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSceneConfig(bad); err == nil {
		t.Error("malformed yaml accepted")
	}

	clash := filepath.Join(dir, "clash.yaml")
	body := "scene: x\ncomponents:\n  - id: 1089\n    name: clash\n"
	if err := os.WriteFile(clash, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadSceneConfig(clash)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.Registry(); err == nil {
		t.Errorf("component %d registered over a well-known id", scenebridge.ComponentID(1089))
	}
}
