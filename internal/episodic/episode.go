// Package episodic stores past task executions and retrieves them with a
// hybrid semantic + fuzzy + keyword search, so an agent can recall how a
// similar task went before starting a new one.
package episodic

import (
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Outcome statuses.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)

// Episode is one persisted task execution. Slice-typed fields serialise to
// JSON columns in the row store; scalar metrics are plain columns.
type Episode struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	SessionID       string    `json:"session_id"`
	TaskType        string    `json:"task_type"`
	TaskDescription string    `json:"task_description"`
	Embedding       []float32 `json:"embedding,omitempty"`
	FilesInvolved   []string  `json:"files_involved,omitempty"`
	ErrorTypes      []string  `json:"error_types,omitempty"`
	ToolsUsed       []string  `json:"tools_used,omitempty"`
	OutcomeStatus   string    `json:"outcome_status"`
	DurationMS      int64     `json:"duration_ms"`
	TokensUsed      int64     `json:"tokens_used"`
	UsefulnessScore float64   `json:"usefulness_score"`
	RetrievalCount  int       `json:"retrieval_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// episodeSchema validates rows before they reach the relational store.
const episodeSchema = `{
	"type": "object",
	"required": ["id", "project_id", "task_description", "outcome_status"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"project_id": {"type": "string", "minLength": 1},
		"task_description": {"type": "string", "minLength": 1},
		"outcome_status": {"enum": ["success", "failure", "partial"]},
		"usefulness_score": {"type": "number", "minimum": 0, "maximum": 1},
		"retrieval_count": {"type": "integer", "minimum": 0}
	}
}`

var episodeSchemaLoader = gojsonschema.NewStringLoader(episodeSchema)

// Validate checks the episode against the persisted-row schema.
func (e *Episode) Validate() error {
	res, err := gojsonschema.Validate(episodeSchemaLoader, gojsonschema.NewGoLoader(e))
	if err != nil {
		return fmt.Errorf("episodic: validate: %w", err)
	}

	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, verr := range res.Errors() {
			msgs = append(msgs, verr.String())
		}

		return fmt.Errorf("episodic: invalid episode %s: %s", e.ID, strings.Join(msgs, "; "))
	}

	return nil
}
