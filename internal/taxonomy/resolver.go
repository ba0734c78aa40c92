package taxonomy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/receiptdev/receipt-manager/internal/repository"
)

// Resolver maps free-text category/subcategory names onto the persistent
// two-level category tree, creating nodes on first sight. All taxonomy
// mutation in the system goes through here; the repository's find-or-create
// recovers insert races internally, so resolution never fails a pipeline run
// on concurrent creation of the same name.
type Resolver struct {
	categories repository.CategoryRepository
	logger     *slog.Logger
}

func NewResolver(categories repository.CategoryRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{categories: categories, logger: logger}
}

// ResolveCategory returns the id of the top-level category with the given
// name. An empty name yields nil with no row created.
func (r *Resolver) ResolveCategory(ctx context.Context, name string) (*int32, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	id, err := r.categories.FindOrCreateRoot(ctx, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ResolveSubcategory returns the id of the subcategory with the given name
// under parentID. An empty name or an absent parent yields nil; a
// subcategory is never created without a resolved parent, so the tree never
// exceeds two levels.
func (r *Resolver) ResolveSubcategory(ctx context.Context, name string, parentID *int32) (*int32, error) {
	name = strings.TrimSpace(name)
	if name == "" || parentID == nil {
		return nil, nil
	}
	id, err := r.categories.FindOrCreateChild(ctx, name, *parentID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Session memoizes resolutions for one pipeline run so items sharing the same
// (category, subcategory) strings hit storage once per distinct pairing.
type Session struct {
	resolver *Resolver
	roots    map[string]*int32
	children map[childKey]*int32
}

type childKey struct {
	parent int32
	name   string
}

func (r *Resolver) NewSession() *Session {
	return &Session{
		resolver: r,
		roots:    make(map[string]*int32),
		children: make(map[childKey]*int32),
	}
}

// Resolve returns the (category id, subcategory id) pair for one item's
// free-text names.
func (s *Session) Resolve(ctx context.Context, category, subcategory string) (*int32, *int32, error) {
	category = strings.TrimSpace(category)
	subcategory = strings.TrimSpace(subcategory)

	catID, ok := s.roots[category]
	if !ok {
		var err error
		catID, err = s.resolver.ResolveCategory(ctx, category)
		if err != nil {
			return nil, nil, err
		}
		s.roots[category] = catID
	}
	if catID == nil || subcategory == "" {
		return catID, nil, nil
	}

	key := childKey{parent: *catID, name: subcategory}
	subID, ok := s.children[key]
	if !ok {
		var err error
		subID, err = s.resolver.ResolveSubcategory(ctx, subcategory, catID)
		if err != nil {
			return nil, nil, err
		}
		s.children[key] = subID
	}
	return catID, subID, nil
}
