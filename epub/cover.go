package epub

import (
	"fmt"
)

// Cover returns raw data and declared media type of publication cover image.
func (b *Book) Cover() ([]byte, string, error) {
	if b.coverID == "" {
		return nil, "", ErrNoCover
	}
	item := b.manifest[b.coverID]
	data, err := b.ReadFile(item.Href)
	if err != nil {
		return nil, "", fmt.Errorf("unable to read cover %s: %w", item.Href, err)
	}
	return data, item.MediaType, nil
}
