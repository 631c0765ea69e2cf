package view

// Page is the render state of a data-backed page.
type Page int

const (
	PageReady Page = iota
	PageLoading
	PageError
	PageEmpty
)

func (p Page) String() string {
	switch p {
	case PageLoading:
		return "loading"
	case PageError:
		return "error"
	case PageEmpty:
		return "empty"
	default:
		return "ready"
	}
}

// PageState picks what a page shows. A loading page with data already on
// hand keeps showing it.
func PageState(loading bool, err string, empty bool) Page {
	switch {
	case loading && empty:
		return PageLoading
	case err != "":
		return PageError
	case empty:
		return PageEmpty
	default:
		return PageReady
	}
}
