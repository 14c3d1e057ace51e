package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestConfigure(t *testing.T) {
	model := &genai.GenerativeModel{}
	configure(model)

	assert.Equal(t, float32(0.7), *model.Temperature)
	assert.Equal(t, float32(0.8), *model.TopP)
	assert.Equal(t, int32(40), *model.TopK)
	assert.Equal(t, int32(2048), *model.MaxOutputTokens)

	assert.Len(t, model.SafetySettings, 4)
	for _, s := range model.SafetySettings {
		assert.Equal(t, genai.HarmBlockMediumAndAbove, s.Threshold)
	}
}

func TestResponseText(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		assert.Equal(t, "", responseText(nil))
	})

	t.Run("no candidate", func(t *testing.T) {
		assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
	})

	t.Run("text parts joined", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{
					genai.Text("Subject: Learn Go\n"),
					genai.Blob{MIMEType: "image/png"},
					genai.Text("<html></html>"),
				}}},
			},
		}

		assert.Equal(t, "Subject: Learn Go\n<html></html>", responseText(resp))
	})
}

func TestClassify(t *testing.T) {
	t.Run("invalid key in message", func(t *testing.T) {
		err := classify(errors.New("googleapi: Error 400: API key not valid. reason: API_KEY_INVALID"))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("quota in message", func(t *testing.T) {
		err := classify(errors.New("rpc error: Quota exceeded for quota metric"))
		assert.ErrorIs(t, err, ErrQuota)
	})

	t.Run("http 403", func(t *testing.T) {
		err := classify(&googleapi.Error{Code: http.StatusForbidden, Message: "permission denied"})
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("http 429", func(t *testing.T) {
		err := classify(&googleapi.Error{Code: http.StatusTooManyRequests, Message: "slow down"})
		assert.ErrorIs(t, err, ErrQuota)
	})

	t.Run("other", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := classify(cause)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrInvalidKey)
		assert.NotErrorIs(t, err, ErrQuota)
	})
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.GenerateText(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNew_validation(t *testing.T) {
	client, err := New(context.Background(), Config{})
	assert.Error(t, err)
	assert.Nil(t, client)
}
