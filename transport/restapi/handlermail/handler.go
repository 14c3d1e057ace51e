package handlermail

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/edumail/internal/svc/mergesvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
	"github.com/yusufsyaifudin/edumail/pkg/respbuilder"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/edumail/transport/restapi/httptyped"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/multierr"
)

const defaultMaxUploadBytes = 32 << 20

// IDGen is satisfied by *sonyflake.Sonyflake.
type IDGen interface {
	NextID() (uint64, error)
}

type HandlerConfig struct {
	MergeService mergesvc.Service `validate:"required"`
	IDGen        IDGen            `validate:"required"`
	UploadDir    string           `validate:"required"`

	// MaxUploadBytes is the multipart size kept in memory, the rest spills to temp files.
	MaxUploadBytes int64 `validate:"min=0"`
}

type Handler struct {
	Config  HandlerConfig
	decoder *schema.Decoder
}

func NewHandler(conf HandlerConfig) (*Handler, error) {
	err := validator.Validate(conf)
	if err != nil {
		return nil, err
	}

	if conf.MaxUploadBytes <= 0 {
		conf.MaxUploadBytes = defaultMaxUploadBytes
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &Handler{Config: conf, decoder: decoder}, nil
}

// SendReq.Subject is nil when the key is absent or null, an explicit empty subject is rejected.
type SendReq struct {
	Recipient string  `json:"recipient"`
	Subject   *string `json:"subject"`
	Body      string  `json:"body"`
}

type SendResp struct {
	Message string `json:"message"`
}

// Send delivers one email without CSS inlining.
// Path         : POST /send-email
// Request Body : SendReq
// Response     : SendResp
func (h *Handler) Send() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var reqBody SendReq
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

		subject := mergesvc.DefaultSingleSubject
		if reqBody.Subject != nil {
			subject = *reqBody.Subject
		}

		out, err := h.Config.MergeService.SendOne(ctx, mergesvc.InSendOne{
			Recipient: reqBody.Recipient,
			Subject:   subject,
			Body:      reqBody.Body,
		})
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, SendResp{
			Message: fmt.Sprintf("Email sent successfully to %s", out.Recipient),
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

// BulkSendForm holds the text fields of the multipart request.
type BulkSendForm struct {
	EmailData string `schema:"email_data"`
	Subject   string `schema:"subject"`
}

type BulkSendResp struct {
	Sent   int                `json:"sent"`
	Failed []mergesvc.Failure `json:"failed"`
	Total  int                `json:"total"`
}

// BulkSend merges a CSV of recipients into the HTML template and sends one email per row.
// Path         : POST /bulk-send
// Request Body : multipart form with csv_file, email_data, subject and repeated attachments
// Response     : BulkSendResp
func (h *Handler) BulkSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := r.ParseMultipartForm(h.Config.MaxUploadBytes); err != nil {
			httptyped.WriteValidation(w, r, "request must be multipart/form-data: "+err.Error())
			return
		}

		defer func() {
			if _err := r.MultipartForm.RemoveAll(); _err != nil {
				ylog.Error(ctx, "cannot remove multipart temp files", ylog.KV("error", _err))
			}
		}()

		var form BulkSendForm
		if err := h.decoder.Decode(&form, r.MultipartForm.Value); err != nil {
			httptyped.WriteValidation(w, r, err.Error())
			return
		}

		in := mergesvc.InSendBulk{
			Template: form.EmailData,
			Subject:  form.Subject,
		}

		if headers := r.MultipartForm.File["csv_file"]; len(headers) > 0 {
			csvFile, err := headers[0].Open()
			if err != nil {
				httptyped.WriteError(w, r, svcerr.Wrap(svcerr.ErrInternal, err.Error()))
				return
			}
			defer csvFile.Close()

			in.CSV = csvFile
			in.CSVName = headers[0].Filename
		}

		batchDir, attachments, err := h.saveAttachments(r.MultipartForm.File["attachments"])
		defer func() {
			if batchDir == "" {
				return
			}

			if _err := os.RemoveAll(batchDir); _err != nil {
				ylog.Error(ctx, "cannot remove batch upload dir", ylog.KV("dir", batchDir), ylog.KV("error", _err))
			}
		}()

		if err != nil {
			httptyped.WriteError(w, r, svcerr.Wrap(svcerr.ErrInternal, err.Error()))
			return
		}

		in.Attachments = attachments

		out, err := h.Config.MergeService.SendBulk(ctx, in)
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, BulkSendResp{
			Sent:   out.Sent,
			Failed: out.Failed,
			Total:  out.Total,
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

// saveAttachments copies the uploads into {UploadDir}/{batchID}/{basename}. Parts without a file name are skipped.
func (h *Handler) saveAttachments(headers []*multipart.FileHeader) (dir string, paths []string, err error) {
	paths = make([]string, 0, len(headers))
	if len(headers) == 0 {
		return
	}

	id, err := h.Config.IDGen.NextID()
	if err != nil {
		err = fmt.Errorf("generate batch id error: %w", err)
		return
	}

	dir = filepath.Join(h.Config.UploadDir, strconv.FormatUint(id, 10))
	if err = os.MkdirAll(dir, 0o755); err != nil {
		err = fmt.Errorf("create upload dir error: %w", err)
		return
	}

	for _, header := range headers {
		name := filepath.Base(header.Filename)
		if header.Filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
			continue
		}

		path := filepath.Join(dir, name)
		if err = saveFile(header, path); err != nil {
			return
		}

		paths = append(paths, path)
	}

	return
}

func saveFile(header *multipart.FileHeader, path string) (err error) {
	src, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload %s error: %w", header.Filename, err)
	}

	defer func() {
		err = multierr.Append(err, src.Close())
	}()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s error: %w", path, err)
	}

	defer func() {
		err = multierr.Append(err, dst.Close())
	}()

	if _, err = io.Copy(dst, src); err != nil {
		return fmt.Errorf("save upload %s error: %w", header.Filename, err)
	}

	return nil
}
