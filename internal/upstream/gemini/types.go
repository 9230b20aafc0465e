package gemini

// Area is one area descriptor sent to the model.
type Area struct {
	AdmID      string `json:"admId"`
	Name       string `json:"name"`
	Level      int    `json:"level"`
	ParentName string `json:"parentName,omitempty"`
	// Existing localized names, sent as context. Empty means missing.
	NameEn string `json:"nameEn,omitempty"`
	NameJa string `json:"nameJa,omitempty"`
}

// BatchRequest is one naming call: a batch of areas sharing country context
// plus the country's transliteration rules.
type BatchRequest struct {
	CountryCode string
	CountryName string
	Rules       []string
	Areas       []Area
}

// NameResult is one scored naming result. Confidence is NaN when the model
// omitted it.
type NameResult struct {
	AdmID      string
	NameEn     string
	NameJa     string
	Confidence float64
	Reasoning  string
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// generateResponse is the generateContent response body. Error is set on
// failure responses.
type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
	Error          *apiError       `json:"error"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// rawResult is one item as the model writes it. Pointer fields tell a
// missing value from a zero one.
type rawResult struct {
	AdmID      string   `json:"admId"`
	NameEn     *string  `json:"nameEn"`
	NameJa     *string  `json:"nameJa"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}
