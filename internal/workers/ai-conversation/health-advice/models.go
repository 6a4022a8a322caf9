// internal/workers/ai-conversation/health-advice/models.go
package healthadvice

import "medkit-workers/internal/normalize"

const (
	ModeHealth    = "health"
	ModeTherapist = "therapist"
)

type Input struct {
	Message string `json:"message"`
	History []Turn `json:"history"`
	Mode    string `json:"mode"`
}

// Turn is one earlier exchange. Role is "user" or "assistant".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type Output struct {
	Response  string               `json:"response"`
	Citations []normalize.Citation `json:"citations"`
	Fallback  bool                 `json:"fallback"`
}
