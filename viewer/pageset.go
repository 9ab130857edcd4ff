package viewer

// ResolvePages returns the ordered page numbers to display: the selected
// page when it is within [1, pageCount], otherwise every page.
func ResolvePages(pageCount, selector int) []int {
	if pageCount <= 0 {
		return nil
	}
	if selector >= 1 && selector <= pageCount {
		return []int{selector}
	}
	pages := make([]int, pageCount)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// printPages returns the pages printed by Print: every page when allPages
// is set or no page is selected, otherwise the selected page.
func printPages(pageCount, selector int, allPages bool) []int {
	if allPages || selector == 0 {
		return ResolvePages(pageCount, 0)
	}
	return ResolvePages(pageCount, selector)
}
