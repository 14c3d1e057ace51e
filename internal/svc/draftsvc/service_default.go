package draftsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
	"github.com/yusufsyaifudin/edumail/pkg/gemini"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
)

const (
	DefaultSubject = "Promotional Email"

	promptTemplate = `You are an expert email copywriter specializing in educational technology promotions.
Create compelling, professional email content that converts.
Always respond with properly formatted HTML email content.

Create a promotional email for educational technology based on this prompt: %s.

The email should include:
1. A subject line
2. Preheader text
3. Full HTML body with inline CSS suitable for email clients
4. Professional design with clear call-to-action

Make sure the email is responsive and looks good on both desktop and mobile devices.`
)

type Config struct {
	Model TextModel `validate:"required"`
}

type DefaultService struct {
	model TextModel
}

var _ DraftGenerator = (*DefaultService)(nil)

func New(cfg Config) (*DefaultService, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("draft service config validation error: %w", err)
	}

	return &DefaultService{model: cfg.Model}, nil
}

func (s *DefaultService) Generate(ctx context.Context, in InGenerate) (out OutGenerate, err error) {
	if strings.TrimSpace(in.Prompt) == "" {
		err = svcerr.Wrap(svcerr.ErrValidation, "No prompt provided")
		return
	}

	ylog.Info(ctx, "generating email draft", ylog.KV("prompt", in.Prompt))

	// the prompt goes into the template verbatim, blank is only checked
	text, err := s.model.GenerateText(ctx, BuildPrompt(in.Prompt))
	switch {
	case err == nil && strings.TrimSpace(text) == "":
		err = svcerr.Wrap(svcerr.ErrInternal, "Failed to generate email content")
		return

	case err == nil:

	case errors.Is(err, gemini.ErrInvalidKey):
		err = svcerr.Wrap(svcerr.ErrAuth, err.Error())
		return

	case errors.Is(err, gemini.ErrQuota):
		err = svcerr.Wrap(svcerr.ErrRateLimit, err.Error())
		return

	case errors.Is(err, gemini.ErrEmpty):
		err = svcerr.Wrap(svcerr.ErrInternal, "Failed to generate email content")
		return

	default:
		ylog.Error(ctx, "generate email draft failed", ylog.KV("error", err))
		err = svcerr.Wrap(svcerr.ErrInternal, err.Error())
		return
	}

	out = OutGenerate{
		Email:   text,
		Subject: ExtractSubject(text),
	}
	return
}

func BuildPrompt(prompt string) string {
	return fmt.Sprintf(promptTemplate, prompt)
}

// ExtractSubject reads "Subject: ..." from the first line, anything else gives DefaultSubject.
func ExtractSubject(text string) string {
	firstLine := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		firstLine = text[:i]
	}

	if !strings.Contains(strings.ToLower(firstLine), "subject:") {
		return DefaultSubject
	}

	parts := strings.SplitN(firstLine, ":", 2)
	return strings.TrimSpace(parts[1])
}
