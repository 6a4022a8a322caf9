// internal/workers/ai-conversation/suggest-ayurvedic/models.go
package suggestayurvedic

type Input struct {
	Prescription string `json:"prescription"`
}

type Output struct {
	AyurvedicAlternatives string `json:"ayurvedicAlternatives"`
	UsedFallback          bool   `json:"usedFallback"`
}
