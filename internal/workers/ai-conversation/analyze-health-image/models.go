// internal/workers/ai-conversation/analyze-health-image/models.go
package analyzehealthimage

type Input struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
	Caption     string `json:"caption"`
}

type Output struct {
	Analysis             string   `json:"analysis"`
	Recommendations      []string `json:"recommendations"`
	Urgency              string   `json:"urgency"`
	SeekMedicalAttention bool     `json:"seek_medical_attention"`
	Parsed               bool     `json:"parsed"`
}
