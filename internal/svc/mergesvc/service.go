package mergesvc

import (
	"context"
	"io"
)

const (
	DefaultSingleSubject = "Promotional Email"
	DefaultBulkSubject   = "EduTech Promotion"
)

// InSendOne is one message. Callers put DefaultSingleSubject in Subject when none was given.
type InSendOne struct {
	Recipient string
	Subject   string
	Body      string
}

type OutSendOne struct {
	Recipient string
}

// InSendBulk is one batch. CSV nil means no file was uploaded, CSVName is the uploaded file name.
type InSendBulk struct {
	Template    string
	Subject     string
	CSV         io.Reader
	CSVName     string
	Attachments []string
}

// Failure is one row that was not delivered. Index is the zero based data row position.
type Failure struct {
	Index int          `json:"index"`
	Row   RecipientRow `json:"row"`
	Error string       `json:"error"`
}

type OutSendBulk struct {
	Sent   int       `json:"sent"`
	Failed []Failure `json:"failed"`
	Total  int       `json:"total"`
}

type Service interface {
	SendOne(ctx context.Context, in InSendOne) (OutSendOne, error)
	SendBulk(ctx context.Context, in InSendBulk) (OutSendBulk, error)
}
