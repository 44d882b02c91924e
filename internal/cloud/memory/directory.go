package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/adi-253/webchat/backend/internal/cloud"
)

// Directory maps authentication provider strings to display names.
type Directory struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewDirectory() *Directory {
	return &Directory{names: make(map[string]string)}
}

// Set registers a display name.
func (d *Directory) Set(authProvider, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[authProvider] = name
}

func (d *Directory) DisplayName(ctx context.Context, authProvider string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[authProvider]
	if !ok {
		return "", fmt.Errorf("display name: %w", cloud.ErrNotFound)
	}
	return name, nil
}
