package ledger

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Categories reads the category tree and maps recognized category names to ids.
// Trees are cached until Invalidate is called or a name misses a cached tree.
type Categories struct {
	client *Client

	mu    sync.Mutex
	cache map[BillType][]Category
}

// NewCategories creates a Categories client
func NewCategories(client *Client) *Categories {
	return &Categories{
		client: client,
		cache:  make(map[BillType][]Category),
	}
}

// List returns the category tree for a bill type
func (c *Categories) List(ctx context.Context, billType BillType) ([]Category, error) {
	tree, _, err := c.list(ctx, billType)
	return tree, err
}

func (c *Categories) list(ctx context.Context, billType BillType) ([]Category, bool, error) {
	c.mu.Lock()
	cached, ok := c.cache[billType]
	c.mu.Unlock()
	if ok {
		return cached, true, nil
	}

	var tree []Category
	path := fmt.Sprintf("/categories?type=%d", int(billType))
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &tree); err != nil {
		return nil, false, fmt.Errorf("listing categories: %w", err)
	}

	c.mu.Lock()
	c.cache[billType] = tree
	c.mu.Unlock()
	return tree, false, nil
}

// Resolve finds the category named name within the tree of billType.
// Names compare case-insensitively after trimming; parents are checked
// before their children. A miss against a cached tree refetches it once, so
// categories added on the backend since the last load are found.
func (c *Categories) Resolve(ctx context.Context, billType BillType, name string) (Category, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, false, nil
	}
	tree, cached, err := c.list(ctx, billType)
	if err != nil {
		return Category{}, false, err
	}
	if cat, ok := findCategory(tree, name); ok || !cached {
		return cat, ok, nil
	}

	c.Invalidate()
	if tree, _, err = c.list(ctx, billType); err != nil {
		return Category{}, false, err
	}
	cat, ok := findCategory(tree, name)
	return cat, ok, nil
}

// Invalidate drops cached trees
func (c *Categories) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[BillType][]Category)
}

func findCategory(tree []Category, name string) (Category, bool) {
	for _, cat := range tree {
		if strings.EqualFold(strings.TrimSpace(cat.Name), name) {
			return cat, true
		}
	}
	for _, cat := range tree {
		if found, ok := findCategory(cat.Children, name); ok {
			return found, true
		}
	}
	return Category{}, false
}
