package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/adi-253/webchat/backend/internal/cloud"
)

const defaultMaxKeys = 1000

type object struct {
	body        []byte
	contentType string
}

func (c *Cloud) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("put object: %w", cloud.ErrInvalidParameter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = object{body: append([]byte(nil), body...), contentType: contentType}
	return nil
}

func (c *Cloud) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key]
	if !ok {
		return nil, fmt.Errorf("get object %s: %w", key, cloud.ErrNotFound)
	}
	return append([]byte(nil), obj.body...), nil
}

// List pages through keys in lexicographic order. The continuation token is
// the last key of the previous page.
func (c *Cloud) List(ctx context.Context, in cloud.ListInput) (cloud.ListPage, error) {
	max := in.MaxKeys
	if max <= 0 {
		max = defaultMaxKeys
	}
	after := in.StartAfter
	if in.ContinuationToken != "" {
		after = in.ContinuationToken
	}

	c.mu.Lock()
	keys := make([]string, 0)
	for key := range c.objects {
		if strings.HasPrefix(key, in.Prefix) && key > after {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()
	sort.Strings(keys)

	page := cloud.ListPage{Keys: keys}
	if len(keys) > max {
		page.Keys = keys[:max]
		page.Truncated = true
		page.NextToken = page.Keys[max-1]
	}
	return page, nil
}

// Delete succeeds for missing keys, like S3.
func (c *Cloud) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

// Keys returns every stored key with the prefix, sorted. Used by tests.
func (c *Cloud) Keys(prefix string) []string {
	c.mu.Lock()
	n := len(c.objects)
	c.mu.Unlock()
	page, _ := c.List(context.Background(), cloud.ListInput{Prefix: prefix, MaxKeys: n + 1})
	return page.Keys
}

func (c *Cloud) CreateLogGroup(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.logGroups[name]; ok {
		return fmt.Errorf("create log group %s: %w", name, cloud.ErrAlreadyExists)
	}
	c.logGroups[name] = nil
	return nil
}

func (c *Cloud) PutMetricFilter(ctx context.Context, group string, filter cloud.MetricFilter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	filters, ok := c.logGroups[group]
	if !ok {
		return fmt.Errorf("put metric filter %s: %w", group, cloud.ErrNotFound)
	}
	for _, name := range filters {
		if name == filter.Name {
			return nil
		}
	}
	c.logGroups[group] = append(filters, filter.Name)
	return nil
}

func (c *Cloud) DeleteLogGroup(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.logGroups[name]; !ok {
		return fmt.Errorf("delete log group %s: %w", name, cloud.ErrNotFound)
	}
	delete(c.logGroups, name)
	return nil
}

// LogGroupExists reports whether the log group is present. Used by tests.
func (c *Cloud) LogGroupExists(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.logGroups[name]
	return ok
}
