// internal/workers/ai-conversation/interpret-prescription/models.go
package interpretprescription

type Input struct {
	UserID      string `json:"userId"`
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
}

type Output struct {
	PrescriptionInterpretation Interpretation  `json:"prescriptionInterpretation"`
	InventoryComparison        string          `json:"inventoryComparison"`
	Inventory                  []InventoryItem `json:"inventory"`
	UsedFallback               bool            `json:"usedFallback"`
}

type Interpretation struct {
	Interpretation string   `json:"interpretation"`
	Warnings       []string `json:"warnings"`
}

type InventoryItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	ExpiryDate string `json:"expiryDate,omitempty"`
}
