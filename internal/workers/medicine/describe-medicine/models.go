// internal/workers/medicine/describe-medicine/models.go
package describemedicine

const FormatStructured = "structured"

type Input struct {
	MedicineName string `json:"medicineName"`
	Format       string `json:"format"`
}

type Output struct {
	Description string                 `json:"description"`
	Kind        string                 `json:"kind"`
	Structured  map[string]interface{} `json:"structured,omitempty"`
	SourcesUsed []string               `json:"sourcesUsed"`
}
