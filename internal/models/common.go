package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalCount int        `json:"total_count"`
	Links      *PageLinks `json:"-"`
}

// PageLinks carries HATEOAS navigation links computed from the total count.
type PageLinks struct {
	Self string `json:"self"`
	Prev string `json:"prev,omitempty"`
	Next string `json:"next,omitempty"`
	Last string `json:"last,omitempty"`
}
