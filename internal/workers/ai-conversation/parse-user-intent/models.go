// internal/workers/ai-conversation/parse-user-intent/models.go
package parseuserintent

type Input struct {
	Input string `json:"input"`
}

type Output struct {
	Intent string `json:"intent"`
}
