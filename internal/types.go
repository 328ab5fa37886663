package internal

import "time"

// UngradedScore is the score of a response without a valid grade.
const UngradedScore = -1

type Language struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code" json:"code"`
}

type Prompt struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Category   string `json:"category"`
	SourceLang string `json:"source_lang"`
	Position   int    `json:"position"`
}

type Translation struct {
	PromptID string `json:"prompt_id"`
	Lang     string `json:"lang"`
	Text     string `json:"text"`
	// Source is the source-language column of the file row, when present.
	Source string `json:"source,omitempty"`
}

// Response is one model answer to one translated prompt. Score is derived
// from the current grade and is UngradedScore until a grade exists.
type Response struct {
	ID            string    `json:"id" db:"id"`
	RunID         string    `json:"run_id" db:"run_id"`
	PromptID      string    `json:"prompt_id" db:"prompt_id"`
	Category      string    `json:"category" db:"category"`
	Lang          string    `json:"lang" db:"lang"`
	Model         string    `json:"model" db:"model"`
	Attempt       int       `json:"attempt" db:"attempt"`
	Question      string    `json:"question" db:"question"`
	Text          string    `json:"text" db:"text"`
	LanguageMatch bool      `json:"language_match" db:"language_match"`
	LatencyMs     int64     `json:"latency_ms" db:"latency_ms"`
	Score         int       `json:"score" db:"score"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type BackTranslation struct {
	ResponseID string    `json:"response_id" db:"response_id"`
	Text       string    `json:"text" db:"text"`
	Service    string    `json:"service" db:"service"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Grade struct {
	ResponseID    string    `json:"response_id" db:"response_id"`
	Judge         string    `json:"judge" db:"judge"`
	Grade         int       `json:"grade" db:"grade"`
	Justification string    `json:"justification" db:"justification"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type Failure struct {
	ID        int64     `json:"id" db:"id"`
	RunID     string    `json:"run_id" db:"run_id"`
	Stage     string    `json:"stage" db:"stage"`
	Key       string    `json:"key" db:"key"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Run struct {
	ID        string    `json:"id" db:"id"`
	Env       string    `json:"env" db:"env"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
}

// Pipeline stages, as recorded in the failure log.
const (
	StageTranslate     = "translate"
	StageRespond       = "respond"
	StageBackTranslate = "backtranslate"
	StageGrade         = "grade"
	StageRoundTrip     = "roundtrip"
)

// ItemKey identifies one (model, language, prompt) work item in the failure
// log. Translation items use an empty model.
func ItemKey(model, lang, promptID string) string {
	return model + "/" + lang + "/" + promptID
}

// RoundTrip is a prompt translated into Lang and back into the source
// language, with the similarity of Back to Original.
type RoundTrip struct {
	PromptID   string  `json:"prompt_id"`
	Lang       string  `json:"lang"`
	Original   string  `json:"original"`
	Translated string  `json:"translated"`
	Back       string  `json:"back"`
	Similarity float64 `json:"similarity"`
	Passed     bool    `json:"passed"`
}
