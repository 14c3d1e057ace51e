package handlerdraft

import (
	"net/http"

	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/edumail/internal/svc/draftsvc"
	"github.com/yusufsyaifudin/edumail/pkg/respbuilder"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/edumail/transport/restapi/httptyped"
	"github.com/yusufsyaifudin/ylog"
)

type HandlerConfig struct {
	DraftService draftsvc.DraftGenerator `validate:"required"`
}

type Handler struct {
	Config HandlerConfig
}

func NewHandler(conf HandlerConfig) (*Handler, error) {
	err := validator.Validate(conf)
	if err != nil {
		return nil, err
	}

	return &Handler{Config: conf}, nil
}

type GenerateReq struct {
	Prompt string `json:"prompt"`
}

type GenerateResp struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
}

// Generate drafts a promotional email from a free text prompt.
// Path         : POST /generate-email
// Request Body : GenerateReq
// Response     : GenerateResp
func (h *Handler) Generate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var reqBody GenerateReq
		if r.Body != nil {
			defer func() {
				if _err := r.Body.Close(); _err != nil {
					ylog.Error(ctx, "cannot close request body", ylog.KV("error", _err))
				}
			}()

			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				httptyped.WriteValidation(w, r, "request body must be a JSON object: "+err.Error())
				return
			}
		}

		out, err := h.Config.DraftService.Generate(ctx, draftsvc.InGenerate{Prompt: reqBody.Prompt})
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, GenerateResp{
			Email:   out.Email,
			Subject: out.Subject,
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}
