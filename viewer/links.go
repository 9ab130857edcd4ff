package viewer

import (
	"context"
	"fmt"
)

// LinkService follows links inside the current document. It never changes
// what is displayed itself; it asks the host to jump to a page.
type LinkService struct {
	doc  Document
	jump func(page int)
}

func newLinkService(doc Document, jump func(page int)) *LinkService {
	return &LinkService{doc: doc, jump: jump}
}

// PageCount returns the page count of the bound document.
func (s *LinkService) PageCount() int {
	return s.doc.PageCount()
}

// GoToDestination resolves dest and requests a jump to its page.
func (s *LinkService) GoToDestination(ctx context.Context, dest Destination) error {
	page := dest.Page
	if dest.Name != "" || dest.Ref != "" || page == 0 {
		var err error
		page, err = s.doc.ResolveDestination(ctx, dest)
		if err != nil {
			return fmt.Errorf("resolving link destination: %w", err)
		}
	}
	return s.GoToPage(page)
}

// GoToPage requests a jump to the 1-based page number.
func (s *LinkService) GoToPage(page int) error {
	if page < 1 || page > s.doc.PageCount() {
		return fmt.Errorf("link target page %d out of range [1, %d]", page, s.doc.PageCount())
	}
	s.jump(page)
	return nil
}
