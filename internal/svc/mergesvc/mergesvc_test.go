package mergesvc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/edumail/internal/storage/attemptrepo"
	"github.com/yusufsyaifudin/edumail/internal/svc/attemptsvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/mergesvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
	"github.com/yusufsyaifudin/edumail/pkg/cache"
	"github.com/yusufsyaifudin/edumail/pkg/mailclient"
)

type transportMock struct {
	lock   sync.Mutex
	sent   []mailclient.Email
	failTo map[string]error
}

func (m *transportMock) Name() string {
	return "mock"
}

func (m *transportMock) Send(_ context.Context, email *mailclient.Email) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err, ok := m.failTo[email.To]; ok {
		return err
	}

	for _, path := range email.Attachments {
		if _, err := os.Stat(path); err != nil {
			return err
		}
	}

	m.sent = append(m.sent, *email)
	return nil
}

type attemptsMock struct {
	lock     sync.Mutex
	attempts []attemptsvc.Attempt
}

func (m *attemptsMock) Record(_ context.Context, in attemptsvc.Attempt) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.attempts = append(m.attempts, in)
	return nil
}

func (m *attemptsMock) Counts(context.Context) (attemptsvc.Counts, error) {
	return attemptsvc.Counts{}, nil
}

func (m *attemptsMock) Files(context.Context) (attemptsvc.Files, error) {
	return attemptsvc.Files{}, nil
}

func (m *attemptsMock) CSVPath(string) (string, error) {
	return "", nil
}

func (m *attemptsMock) TextLogPath(string, string) (string, error) {
	return "", nil
}

func (m *attemptsMock) ClearAll(context.Context) (int, error) {
	return 0, nil
}

func (m *attemptsMock) History(context.Context, string, int) ([]attemptrepo.Attempt, error) {
	return nil, nil
}

func (m *attemptsMock) byStatus(status string) []attemptsvc.Attempt {
	m.lock.Lock()
	defer m.lock.Unlock()

	out := make([]attemptsvc.Attempt, 0)
	for _, a := range m.attempts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

type inlinerMock struct {
	lock  sync.Mutex
	calls int
	err   error
}

func (m *inlinerMock) Inline(_ context.Context, html string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "<inlined>" + html, nil
}

type fixture struct {
	svc       *mergesvc.DefaultService
	transport *transportMock
	attempts  *attemptsMock
	inliner   *inlinerMock
}

func newFixture(t *testing.T, maxParallel int, failTo map[string]error) fixture {
	t.Helper()

	f := fixture{
		transport: &transportMock{failTo: failTo},
		attempts:  &attemptsMock{},
		inliner:   &inlinerMock{},
	}

	svc, err := mergesvc.New(mergesvc.Config{
		Transport:   f.transport,
		Attempts:    f.attempts,
		Inliner:     f.inliner,
		Sender:      "promo@example.com",
		MaxParallel: maxParallel,
	})
	require.NoError(t, err)

	f.svc = svc
	return f
}

func writeAttachment(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "brochure.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
	return path
}

func TestNew(t *testing.T) {
	svc, err := mergesvc.New(mergesvc.Config{})
	assert.Error(t, err)
	assert.Nil(t, svc)
}

func TestDefaultService_SendOne(t *testing.T) {
	ctx := context.Background()

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t, 1, nil)

		for _, in := range []mergesvc.InSendOne{
			{Subject: "s", Body: "<p>b</p>"},
			{Recipient: "a@example.com", Subject: "s"},
			{Recipient: "   ", Subject: "s", Body: "<p>b</p>"},
			{Recipient: "a@example.com", Subject: "", Body: "<p>b</p>"},
			{Recipient: "a@example.com", Subject: "  ", Body: "<p>b</p>"},
		} {
			_, err := f.svc.SendOne(ctx, in)
			assert.ErrorIs(t, err, svcerr.ErrValidation)
			assert.Equal(t, "Missing recipient, subject, or body", svcerr.Detail(err))
		}

		assert.Empty(t, f.transport.sent)
		assert.Empty(t, f.attempts.attempts)
	})

	t.Run("sent as given without inlining", func(t *testing.T) {
		f := newFixture(t, 1, nil)

		out, err := f.svc.SendOne(ctx, mergesvc.InSendOne{
			Recipient: " alice@example.com ",
			Subject:   mergesvc.DefaultSingleSubject,
			Body:      "<p>Hi</p>",
		})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", out.Recipient)

		require.Len(t, f.transport.sent, 1)
		assert.Equal(t, mailclient.Email{
			From:     "promo@example.com",
			To:       "alice@example.com",
			Subject:  "Promotional Email",
			HTMLBody: "<p>Hi</p>",
		}, f.transport.sent[0])
		assert.Equal(t, 0, f.inliner.calls)

		success := f.attempts.byStatus(attemptsvc.StatusSuccess)
		require.Len(t, success, 1)
		assert.Equal(t, "alice@example.com", success[0].Email)
	})

	t.Run("delivery failure", func(t *testing.T) {
		f := newFixture(t, 1, map[string]error{"alice@example.com": errors.New("535 auth failed")})

		_, err := f.svc.SendOne(ctx, mergesvc.InSendOne{Recipient: "alice@example.com", Subject: "Hi", Body: "<p>Hi</p>"})
		assert.ErrorIs(t, err, svcerr.ErrDelivery)
		assert.Contains(t, err.Error(), "535 auth failed")

		failure := f.attempts.byStatus(attemptsvc.StatusFailure)
		require.Len(t, failure, 1)
		assert.Equal(t, "535 auth failed", failure[0].Error)
	})
}

func TestDefaultService_SendBulk(t *testing.T) {
	ctx := context.Background()

	t.Run("validation order", func(t *testing.T) {
		cases := []struct {
			name   string
			in     mergesvc.InSendBulk
			detail string
		}{
			{
				name:   "missing template wins over bad csv",
				in:     mergesvc.InSendBulk{CSVName: "recipients.csv", CSV: strings.NewReader("\xff\xfe")},
				detail: `Missing "email_data" in form-data. This is the HTML body of the email.`,
			},
			{
				name:   "missing csv",
				in:     mergesvc.InSendBulk{Template: "<p>x</p>"},
				detail: "CSV file is required",
			},
			{
				name:   "not a csv name",
				in:     mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "list.xlsx", CSV: strings.NewReader("email\na@example.com\n")},
				detail: "Uploaded file must be a CSV",
			},
			{
				name:   "upper case extension is fine but empty",
				in:     mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "LIST.CSV", CSV: strings.NewReader("")},
				detail: "No recipients found in CSV. Ensure the file has a header row and at least one data row.",
			},
			{
				name:   "not utf8",
				in:     mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "recipients.csv", CSV: strings.NewReader("email\n\xff\xfe@x\n")},
				detail: "Could not decode CSV file. Please use UTF-8 encoding.",
			},
			{
				name:   "header only",
				in:     mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "recipients.csv", CSV: strings.NewReader("email,name\n")},
				detail: "No recipients found in CSV. Ensure the file has a header row and at least one data row.",
			},
			{
				name:   "empty file",
				in:     mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "recipients.csv", CSV: strings.NewReader("")},
				detail: "No recipients found in CSV. Ensure the file has a header row and at least one data row.",
			},
			{
				name:   "no email column",
				in:     mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "recipients.csv", CSV: strings.NewReader("mail,name\na@example.com,A\n")},
				detail: `CSV must have an "email" column in the header.`,
			},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				f := newFixture(t, 1, nil)
				attachment := writeAttachment(t)
				c.in.Attachments = []string{attachment}

				_, err := f.svc.SendBulk(ctx, c.in)
				assert.ErrorIs(t, err, svcerr.ErrValidation)
				assert.Equal(t, c.detail, svcerr.Detail(err))
				assert.Empty(t, f.transport.sent)
				assert.NoFileExists(t, attachment)
			})
		}
	})

	t.Run("personalized rows", func(t *testing.T) {
		f := newFixture(t, 1, nil)
		attachment := writeAttachment(t)

		csvData := "name,EMAIL ,course\nAlice, alice@example.com ,Go\nBob,bob@example.com,\n"
		out, err := f.svc.SendBulk(ctx, mergesvc.InSendBulk{
			Template:    "<p>Hi [name], join [course]!</p>",
			Subject:     "[name], new [course] class",
			CSVName:     "recipients.csv",
			CSV:         strings.NewReader(csvData),
			Attachments: []string{attachment},
		})
		require.NoError(t, err)

		assert.Equal(t, 2, out.Sent)
		assert.Empty(t, out.Failed)
		assert.Equal(t, 2, out.Total)
		assert.Equal(t, 1, f.inliner.calls)
		assert.NoFileExists(t, attachment)

		require.Len(t, f.transport.sent, 2)
		assert.Equal(t, "alice@example.com", f.transport.sent[0].To)
		assert.Equal(t, "<inlined><p>Hi Alice, join Go!</p>", f.transport.sent[0].HTMLBody)
		assert.Equal(t, "Alice, new Go class", f.transport.sent[0].Subject)
		assert.Equal(t, []string{attachment}, f.transport.sent[0].Attachments)

		// empty values leave the placeholder untouched
		assert.Equal(t, "<inlined><p>Hi Bob, join [course]!</p>", f.transport.sent[1].HTMLBody)

		success := f.attempts.byStatus(attemptsvc.StatusSuccess)
		require.Len(t, success, 2)
		assert.Equal(t, "Alice", success[0].Name)
	})

	t.Run("default subject", func(t *testing.T) {
		f := newFixture(t, 1, nil)

		_, err := f.svc.SendBulk(ctx, mergesvc.InSendBulk{
			Template: "<p>x</p>",
			CSVName:  "recipients.csv",
			CSV:      strings.NewReader("email\na@example.com\n"),
		})
		require.NoError(t, err)
		require.Len(t, f.transport.sent, 1)
		assert.Equal(t, "EduTech Promotion", f.transport.sent[0].Subject)
	})

	t.Run("missing email and smtp failure", func(t *testing.T) {
		f := newFixture(t, 1, map[string]error{"bob@example.com": errors.New("550 mailbox unavailable")})

		csvData := "email,Name\nalice@example.com,Alice\n   ,Nobody\nbob@example.com,Bob\n,Empty\n"
		out, err := f.svc.SendBulk(ctx, mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "recipients.csv", CSV: strings.NewReader(csvData)})
		require.NoError(t, err)

		assert.Equal(t, 1, out.Sent)
		assert.Equal(t, 4, out.Total)
		assert.Equal(t, out.Total, out.Sent+len(out.Failed))
		require.Len(t, out.Failed, 3)

		assert.Equal(t, 1, out.Failed[0].Index)
		assert.Equal(t, "Missing email", out.Failed[0].Error)
		assert.Equal(t, 2, out.Failed[1].Index)
		assert.Equal(t, "SMTP error: 550 mailbox unavailable", out.Failed[1].Error)
		assert.Equal(t, 3, out.Failed[2].Index)

		failure := f.attempts.byStatus(attemptsvc.StatusFailure)
		assert.Len(t, failure, 3)
		assert.Len(t, f.attempts.byStatus(attemptsvc.StatusSuccess), 1)
	})

	t.Run("parallel keeps one attempt per row", func(t *testing.T) {
		f := newFixture(t, 4, map[string]error{"u3@example.com": errors.New("boom")})

		var sb strings.Builder
		sb.WriteString("email\n")
		for i := 0; i < 20; i++ {
			sb.WriteString("u")
			sb.WriteString(string(rune('0' + i%10)))
			if i >= 10 {
				sb.WriteString("x")
			}
			sb.WriteString("@example.com\n")
		}

		out, err := f.svc.SendBulk(ctx, mergesvc.InSendBulk{Template: "<p>x</p>", CSVName: "recipients.csv", CSV: strings.NewReader(sb.String())})
		require.NoError(t, err)
		assert.Equal(t, 20, out.Total)
		assert.Equal(t, 19, out.Sent)
		require.Len(t, out.Failed, 1)
		assert.Equal(t, 3, out.Failed[0].Index)
		assert.Len(t, f.attempts.attempts, 20)
	})

	t.Run("cancelled request still completes", func(t *testing.T) {
		f := newFixture(t, 1, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		out, err := f.svc.SendBulk(cancelled, mergesvc.InSendBulk{
			Template: "<p>x</p>",
			CSVName:  "recipients.csv",
			CSV:      strings.NewReader("email\na@example.com\nb@example.com\n"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Sent)
	})

	t.Run("inline failure", func(t *testing.T) {
		f := newFixture(t, 1, nil)
		f.inliner.err = errors.New("bad css")
		attachment := writeAttachment(t)

		_, err := f.svc.SendBulk(ctx, mergesvc.InSendBulk{
			Template:    "<p>x</p>",
			CSVName:     "recipients.csv",
			CSV:         strings.NewReader("email\na@example.com\n"),
			Attachments: []string{attachment},
		})
		assert.ErrorIs(t, err, svcerr.ErrInternal)
		assert.Empty(t, f.transport.sent)
		assert.NoFileExists(t, attachment)
	})
}

func TestParseRecipients(t *testing.T) {
	t.Run("bom and first email column wins", func(t *testing.T) {
		out, err := mergesvc.ParseRecipients(strings.NewReader("\xEF\xBB\xBFEmail,email,name\na@example.com,b@example.com,A\n"))
		require.NoError(t, err)
		assert.Equal(t, "Email", out.EmailColumn)

		v, ok := out.Rows[0].Get("Email")
		assert.True(t, ok)
		assert.Equal(t, "a@example.com", v)
	})

	t.Run("short and long rows", func(t *testing.T) {
		out, err := mergesvc.ParseRecipients(strings.NewReader("email,name,city\na@example.com\nb@example.com,B,X,extra\n"))
		require.NoError(t, err)
		require.Len(t, out.Rows, 2)

		assert.Len(t, out.Rows[0].Fields, 3)
		city, _ := out.Rows[0].Get("city")
		assert.Equal(t, "", city)
		assert.Len(t, out.Rows[1].Fields, 3)
	})

	t.Run("blank lines are skipped", func(t *testing.T) {
		out, err := mergesvc.ParseRecipients(strings.NewReader("email\n\na@example.com\n\n"))
		require.NoError(t, err)
		assert.Len(t, out.Rows, 1)
	})
}

func TestRecipientRow(t *testing.T) {
	row := mergesvc.RecipientRow{Fields: []mergesvc.Field{
		{Column: "zeta", Value: "1"},
		{Column: "Name", Value: "Upper"},
		{Column: "alpha", Value: "2"},
	}}

	t.Run("json keeps header order", func(t *testing.T) {
		raw, err := json.Marshal(row)
		require.NoError(t, err)
		assert.Equal(t, `{"zeta":"1","Name":"Upper","alpha":"2"}`, string(raw))
	})

	t.Run("name falls back to Name", func(t *testing.T) {
		assert.Equal(t, "Upper", row.Name())

		withLower := mergesvc.RecipientRow{Fields: append([]mergesvc.Field{{Column: "name", Value: "lower"}}, row.Fields...)}
		assert.Equal(t, "lower", withLower.Name())
	})

	t.Run("placeholders replaced in insertion order", func(t *testing.T) {
		chained := mergesvc.RecipientRow{Fields: []mergesvc.Field{
			{Column: "a", Value: "[b]"},
			{Column: "b", Value: "done"},
		}}
		assert.Equal(t, "done", mergesvc.Personalize("[a]", chained))

		reversed := mergesvc.RecipientRow{Fields: []mergesvc.Field{
			{Column: "b", Value: "done"},
			{Column: "a", Value: "[b]"},
		}}
		assert.Equal(t, "[b]", mergesvc.Personalize("[a]", reversed))
	})

	t.Run("substitution is idempotent", func(t *testing.T) {
		row := mergesvc.RecipientRow{Fields: []mergesvc.Field{
			{Column: "email", Value: "alice@example.com"},
			{Column: "name", Value: "Alice"},
			{Column: "course", Value: "Go 101"},
			{Column: "city", Value: ""},
		}}
		tpl := "<p>Hi [name], [course] starts soon. Reply to [email] from [city]. [unknown]</p>"

		once := mergesvc.Personalize(tpl, row)
		twice := mergesvc.Personalize(once, row)
		assert.Equal(t, once, twice)
		assert.Equal(t, "<p>Hi Alice, Go 101 starts soon. Reply to alice@example.com from [city]. [unknown]</p>", once)

		for _, f := range row.Fields {
			if f.Value == "" {
				continue
			}
			assert.NotContains(t, twice, "["+f.Column+"]")
		}
	})

	t.Run("value holding an earlier column token is not idempotent", func(t *testing.T) {
		// a single pass in insertion order never revisits columns already replaced
		row := mergesvc.RecipientRow{Fields: []mergesvc.Field{
			{Column: "b", Value: "done"},
			{Column: "a", Value: "[b]"},
		}}

		once := mergesvc.Personalize("[a]", row)
		assert.Equal(t, "[b]", once)
		assert.Equal(t, "done", mergesvc.Personalize(once, row))
	})
}

func TestPremailer_Inline(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewInMemory(0)
	require.NoError(t, err)

	inliner := mergesvc.NewPremailer(mergesvc.PremailerConfig{Cache: store})
	html := `<html><head><style>p { color: red; }</style></head><body><p>Hi [name]</p></body></html>`

	out, err := inliner.Inline(ctx, html)
	require.NoError(t, err)
	assert.Regexp(t, `style="color:\s*red;?"`, out)
	assert.Contains(t, out, "[name]")

	again, err := inliner.Inline(ctx, html)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}
