package handlerlog

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/yusufsyaifudin/edumail/internal/storage/attemptrepo"
	"github.com/yusufsyaifudin/edumail/internal/svc/attemptsvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
	"github.com/yusufsyaifudin/edumail/pkg/respbuilder"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/edumail/transport/restapi/httptyped"
	"github.com/yusufsyaifudin/ylog"
)

type HandlerConfig struct {
	AttemptService attemptsvc.Service `validate:"required"`
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

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &Handler{Config: conf, decoder: decoder}, nil
}

// DownloadCSV sends the attempt CSV of one day.
// Path     : GET /download-csv/{date}
// Response : text/csv attachment
func (h *Handler) DownloadCSV() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := h.Config.AttemptService.CSVPath(chi.URLParam(r, "date"))
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		serveAttachment(w, r, path, "text/csv")
	}
}

// DownloadLog sends the text log of one status and day.
// Path     : GET /download-log/{status}/{date}
// Response : text/plain attachment
func (h *Handler) DownloadLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := h.Config.AttemptService.TextLogPath(chi.URLParam(r, "status"), chi.URLParam(r, "date"))
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		serveAttachment(w, r, path, "text/plain; charset=utf-8")
	}
}

func serveAttachment(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		httptyped.WriteError(w, r, svcerr.Wrap(svcerr.ErrNotFound, filepath.Base(path)+" does not exist"))
		return
	}

	if err != nil {
		httptyped.WriteError(w, r, err)
		return
	}

	defer func() {
		if _err := f.Close(); _err != nil {
			ylog.Error(r.Context(), "cannot close download file", ylog.KV("error", _err))
		}
	}()

	info, err := f.Stat()
	if err != nil {
		httptyped.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// Counts sums every stored CSV by status.
// Path     : GET /email-counts
// Response : attemptsvc.Counts
func (h *Handler) Counts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		counts, err := h.Config.AttemptService.Counts(ctx)
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		respbuilder.WriteJSON(http.StatusOK, w, r, respbuilder.Success(ctx, counts))
	}
}

type FilesQuery struct {
	Kind string `schema:"kind" validate:"omitempty,oneof=csv log"`
}

// Files lists the stored CSV and text log names.
// Path     : GET /files?kind=csv|log
// Response : attemptsvc.Files
func (h *Handler) Files() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var query FilesQuery
		if err := h.decoder.Decode(&query, r.URL.Query()); err != nil {
			httptyped.WriteValidation(w, r, err.Error())
			return
		}

		if err := validator.Validate(query); err != nil {
			httptyped.WriteValidation(w, r, "kind must be csv or log")
			return
		}

		files, err := h.Config.AttemptService.Files(ctx)
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		switch query.Kind {
		case "csv":
			files.LogFiles = []string{}
		case "log":
			files.CSVFiles = []string{}
		}

		respbuilder.WriteJSON(http.StatusOK, w, r, respbuilder.Success(ctx, files))
	}
}

type ClearResp struct {
	Message string `json:"message"`
	Removed int    `json:"removed"`
}

// ClearAll deletes every stored log file.
// Path     : POST or DELETE /clear-all
// Response : ClearResp
func (h *Handler) ClearAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		removed, err := h.Config.AttemptService.ClearAll(ctx)
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, ClearResp{
			Message: "All log and CSV files cleared",
			Removed: removed,
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

type AttemptsQuery struct {
	Date  string `schema:"date"`
	Limit int    `schema:"limit"`
}

type AttemptsResp struct {
	Date     string                `json:"date"`
	Attempts []attemptrepo.Attempt `json:"attempts"`
}

// Attempts lists the mirrored history of one day.
// Path     : GET /attempts?date=YYYYMMDD&limit=N
// Response : AttemptsResp
func (h *Handler) Attempts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var query AttemptsQuery
		if err := h.decoder.Decode(&query, r.URL.Query()); err != nil {
			httptyped.WriteValidation(w, r, err.Error())
			return
		}

		attempts, err := h.Config.AttemptService.History(ctx, query.Date, query.Limit)
		if err != nil {
			httptyped.WriteError(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, AttemptsResp{
			Date:     query.Date,
			Attempts: attempts,
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}
