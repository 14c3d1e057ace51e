package mergesvc

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
)

const (
	msgNotUTF8      = "Could not decode CSV file. Please use UTF-8 encoding."
	msgNoRecipients = "No recipients found in CSV. Ensure the file has a header row and at least one data row."
	msgNoEmailCol   = `CSV must have an "email" column in the header.`
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Recipients is a parsed CSV upload.
type Recipients struct {
	EmailColumn string
	Rows        []RecipientRow
}

// ParseRecipients reads a UTF-8 CSV with a header row. Short rows get empty values for the missing columns,
// surplus values are ignored. The email column is the first header equal to "email" ignoring case and spaces.
func ParseRecipients(r io.Reader) (out Recipients, err error) {
	content, err := io.ReadAll(r)
	if err != nil {
		err = svcerr.Wrap(svcerr.ErrValidation, "cannot read CSV file: "+err.Error())
		return
	}

	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		err = svcerr.Wrap(svcerr.ErrValidation, msgNotUTF8)
		return
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		err = svcerr.Wrap(svcerr.ErrValidation, msgNoRecipients)
		return
	}

	if err != nil {
		err = svcerr.Wrap(svcerr.ErrValidation, "malformed CSV: "+err.Error())
		return
	}

	out.Rows = make([]RecipientRow, 0)
	for {
		var record []string
		record, err = reader.Read()
		if errors.Is(err, io.EOF) {
			err = nil
			break
		}

		if err != nil {
			err = svcerr.Wrap(svcerr.ErrValidation, "malformed CSV: "+err.Error())
			return
		}

		row := RecipientRow{Fields: make([]Field, 0, len(header))}
		for i, column := range header {
			value := ""
			if i < len(record) {
				value = record[i]
			}

			row.set(column, value)
		}

		out.Rows = append(out.Rows, row)
	}

	if len(out.Rows) == 0 {
		err = svcerr.Wrap(svcerr.ErrValidation, msgNoRecipients)
		return
	}

	for _, column := range header {
		if strings.ToLower(strings.TrimSpace(column)) == "email" {
			out.EmailColumn = column
			break
		}
	}

	if out.EmailColumn == "" {
		err = svcerr.Wrap(svcerr.ErrValidation, msgNoEmailCol)
		return
	}

	return out, nil
}
