package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// maxParallelFiles bounds concurrent descriptor file reads.
const maxParallelFiles = 8

// descriptorFile is the YAML layout of a descriptor file.
type descriptorFile struct {
	Entities []*EntityDef `yaml:"entities"`
}

// ParseDescriptors decodes entity descriptors from YAML.
func ParseDescriptors(data []byte) ([]*EntityDef, error) {
	var f descriptorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode descriptors: %w", err)
	}
	return f.Entities, nil
}

// LoadFiles reads descriptors from a YAML file or from every .yaml/.yml
// file in a directory. Files are read concurrently; the result keeps file
// name order.
func LoadFiles(ctx context.Context, path string) ([]*EntityDef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("schema dir: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	results := make([][]*EntityDef, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFiles)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			defs, err := ParseDescriptors(data)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			results[i] = defs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*EntityDef
	for _, defs := range results {
		all = append(all, defs...)
	}
	return all, nil
}

// LoadYAML replaces the registry contents with the descriptors at path.
func (r *Registry) LoadYAML(ctx context.Context, path string) error {
	defs, err := LoadFiles(ctx, path)
	if err != nil {
		return fmt.Errorf("schema load: %w", err)
	}
	return r.Replace(defs)
}
