package arena

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sidecarPath mirrors _jbpf_get_file_pathname's meta_path_name/mem_name
// join: a small metadata file living next to (not inside) the mapping it
// describes, so a second process can discover how to Attach without
// guessing flags.
func sidecarPath(dir, name string) string {
	return filepath.Join(dir, name+".meta")
}

func writeSidecar(dir, name string, meta sidecarMeta) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("arena: create metadata dir %s: %w", dir, err)
	}
	b, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("arena: marshal sidecar metadata: %w", err)
	}
	if err := os.WriteFile(sidecarPath(dir, name), b, 0o644); err != nil {
		return fmt.Errorf("arena: write sidecar metadata: %w", err)
	}
	return nil
}

func readSidecar(dir, name string) (sidecarMeta, error) {
	var meta sidecarMeta
	b, err := os.ReadFile(sidecarPath(dir, name))
	if err != nil {
		return meta, fmt.Errorf("arena: read sidecar metadata: %w", err)
	}
	if err := yaml.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("arena: unmarshal sidecar metadata: %w", err)
	}
	return meta, nil
}

func removeSidecar(dir, name string) {
	if dir == "" {
		return
	}
	_ = os.Remove(sidecarPath(dir, name))
}
