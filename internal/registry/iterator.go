package registry

import (
	"context"

	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
)

// iterator walks the registry listing one item at a time, fetching pages
// lazily. It is finite and not restartable: once exhausted it stays exhausted.
type iterator struct {
	client   *Client
	opts     models.SearchOptions
	maxItems int

	page     int
	buffer   []interfaces.RegistryItem
	pos      int
	yielded  int
	lastPage bool // the buffered page was the listing's final page
	done     bool
}

var _ interfaces.RegistryIterator = (*iterator)(nil)

// Iterate returns a lazy iterator over the listing matching opts. When
// maxItems > 0 the sequence stops after that many items.
func (c *Client) Iterate(ctx context.Context, opts models.SearchOptions, maxItems int) interfaces.RegistryIterator {
	return &iterator{
		client:   c,
		opts:     opts,
		maxItems: maxItems,
	}
}

// Next returns the next item, or nil once the sequence is exhausted
func (it *iterator) Next(ctx context.Context) (*interfaces.RegistryItem, error) {
	if it.done {
		return nil, nil
	}
	if it.maxItems > 0 && it.yielded >= it.maxItems {
		it.done = true
		return nil, nil
	}

	if it.pos >= len(it.buffer) {
		if it.lastPage {
			it.done = true
			return nil, nil
		}
		response, err := it.client.Search(ctx, it.opts, it.page, 0)
		if err != nil {
			it.done = true
			return nil, err
		}
		if len(response.Content) == 0 {
			it.done = true
			return nil, nil
		}
		it.buffer = response.Content
		it.pos = 0
		it.page++
		// The envelope reports its own page count; never ask past it
		if response.TotalPages > 0 && it.page >= response.TotalPages {
			it.lastPage = true
		}
	}

	item := &it.buffer[it.pos]
	it.pos++
	it.yielded++
	return item, nil
}
