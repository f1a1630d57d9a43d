package mailbox

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page is the pagination block of a list response. Limit is the page size
// actually applied, so a request above MaxLimit reports the capped value.
type Page struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
	Limit   int `json:"limit"`
}

// NormalizePaging applies defaults to values below 1 and caps limit.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func Offset(page, limit int) int {
	page, limit = NormalizePaging(page, limit)
	return (page - 1) * limit
}

// NewPage reports the requested page with pages = ceil(total/limit).
func NewPage(page, limit, total int) Page {
	page, limit = NormalizePaging(page, limit)
	if total < 0 {
		total = 0
	}
	return Page{
		Current: page,
		Pages:   (total + limit - 1) / limit,
		Total:   total,
		Limit:   limit,
	}
}
