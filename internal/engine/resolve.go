package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/taskdock/taskdock/internal/store"
)

// CreateItemFromURL adopts a user-pasted link into a tracked local item.
//
// Integrations are tried in registration order; the first that returns a
// non-nil item wins and no further integrations are consulted. Each
// integration performs its own existing-item lookup before creating
// anything, so pasting the same URL twice yields the same item.
//
// A URL no integration claims resolves to (nil, nil): not found is a
// normal negative result, not an error. A malformed URL likewise.
func (e *Engine) CreateItemFromURL(ctx context.Context, userID, rawURL string, isTask bool) (*store.ItemRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if u, err := url.Parse(rawURL); err != nil || u.Host == "" {
		return nil, nil
	}

	for _, kind := range e.registry.Kinds() {
		integ := e.integrations[kind]
		item, err := integ.ItemFromURL(ctx, userID, rawURL, isTask)
		if err != nil {
			return nil, fmt.Errorf("%s resolution failed: %w", kind, err)
		}
		if item != nil {
			return item, nil
		}
	}
	return nil, nil
}
