// Package discovery supplies the observed category taxonomy.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/parser"
)

// ErrDiscoveryFailed marks a source that could not produce any category.
var ErrDiscoveryFailed = errors.New("category discovery failed")

// Discoverer produces the currently observed category set.
type Discoverer interface {
	Discover(ctx context.Context) ([]models.CategoryNode, error)
}

// Static returns a fixed list of categories.
type Static []models.CategoryNode

func (s Static) Discover(context.Context) ([]models.CategoryNode, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: static list is empty", ErrDiscoveryFailed)
	}
	return append([]models.CategoryNode(nil), s...), nil
}

// FileSource reads a saved taxonomy document, such as the JSON captured from
// the best page or a flat list of nodes.
type FileSource struct {
	Path string
}

func (f FileSource) Discover(ctx context.Context) ([]models.CategoryNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrDiscoveryFailed, f.Path, err)
	}
	nodes, err := parser.ParseCategoryTree(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrDiscoveryFailed, f.Path, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %q holds no categories", ErrDiscoveryFailed, f.Path)
	}
	return nodes, nil
}

// Chain tries each source in order and returns the first non-empty result.
type Chain []Discoverer

func (c Chain) Discover(ctx context.Context) ([]models.CategoryNode, error) {
	var errs []error
	for _, d := range c {
		nodes, err := d.Discover(ctx)
		if err == nil && len(nodes) > 0 {
			return nodes, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: source returned no categories", ErrDiscoveryFailed)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("category source failed", slog.Any("error", err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrDiscoveryFailed)
	}
	return nil, errors.Join(errs...)
}
