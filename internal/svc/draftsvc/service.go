package draftsvc

import (
	"context"
)

type InGenerate struct {
	Prompt string
}

// OutGenerate is the raw model output plus the subject taken from its first line.
type OutGenerate struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
}

type DraftGenerator interface {
	Generate(ctx context.Context, in InGenerate) (OutGenerate, error)
}

// TextModel is a single prompt completion, see gemini.Client.
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}
