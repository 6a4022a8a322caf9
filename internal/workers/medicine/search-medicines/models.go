// internal/workers/medicine/search-medicines/models.go
package searchmedicines

type Input struct {
	UserID string `json:"userId"`
	Query  string `json:"query"`
}

type Output struct {
	Medicines      []Medicine     `json:"medicines"`
	Interpretation Interpretation `json:"interpretation"`
	UsedFallback   bool           `json:"usedFallback"`
}

// Interpretation is how the query was read before matching.
type Interpretation struct {
	NameKeywords        []string `json:"name_keywords"`
	DescriptionKeywords []string `json:"description_keywords"`
}

type Medicine struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	Description string `json:"description"`
}
