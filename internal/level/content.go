package level

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Asset is a loaded resource. Placeholder assets stand in for resources
// that failed to load.
type Asset struct {
	Resource    Resource
	Data        []byte
	Placeholder bool
}

// ContentLoader loads and releases level resources.
type ContentLoader interface {
	Load(ctx context.Context, r Resource) (*Asset, error)
	Release(a *Asset) error
}

// VirtualLoader resolves every resource without touching storage. Headless
// rooms use it when no asset directory is configured.
type VirtualLoader struct{}

func (VirtualLoader) Load(ctx context.Context, r Resource) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Asset{Resource: r}, nil
}

func (VirtualLoader) Release(*Asset) error { return nil }

// FileLoader reads resources relative to Root.
type FileLoader struct {
	Root string
}

func (l FileLoader) Load(ctx context.Context, r Resource) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := r.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Root, filepath.FromSlash(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", r.Kind, r.Name, err)
	}
	return &Asset{Resource: r, Data: data}, nil
}

func (l FileLoader) Release(a *Asset) error {
	if a != nil {
		a.Data = nil
	}
	return nil
}

// placeholder builds the stand-in for a resource that failed to load.
func placeholder(r Resource) *Asset {
	return &Asset{Resource: r, Placeholder: true}
}
