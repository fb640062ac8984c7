package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/aura-events/backend/internal/models"
)

// Kind names a notification.
type Kind string

const (
	KindRegistrationCreated   Kind = "registration_created"
	KindRegistrationCancelled Kind = "registration_cancelled"
	KindEventCreated          Kind = "event_created"
	KindEventApproved         Kind = "event_approved"
	KindEventRejected         Kind = "event_rejected"
)

// Message is a rendered notification.
type Message struct {
	Kind     Kind
	Subject  string
	Markdown string
	HTML     string
}

// Raw HTML in templates or user-supplied fields is escaped (WithUnsafe is not set).
var md = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

var templates = map[Kind]struct {
	subject string
	body    *template.Template
}{
	KindRegistrationCreated: {"You're registered: %s", template.Must(template.New("").Parse(
		`Hi {{.Name}},

You have a seat at **{{.Event.Title}}**.

- Date: {{.Date}}
- Location: {{.Event.Location}}

If your plans change, cancel before the day of the event so someone else can take your seat.
`))},
	KindRegistrationCancelled: {"Registration cancelled: %s", template.Must(template.New("").Parse(
		`Hi {{.Name}},

Your registration for **{{.Event.Title}}** on {{.Date}} has been cancelled.
`))},
	KindEventCreated: {"Event submitted: %s", template.Must(template.New("").Parse(
		`Hi {{.Name}},

**{{.Event.Title}}** ({{.Date}}, {{.Event.Location}}) was submitted and is waiting for review.
Attendees can register once it is approved.
`))},
	KindEventApproved: {"Event approved: %s", template.Must(template.New("").Parse(
		`Hi {{.Name}},

**{{.Event.Title}}** on {{.Date}} has been approved and is now open for registration.
`))},
	KindEventRejected: {"Event not approved: %s", template.Must(template.New("").Parse(
		`Hi {{.Name}},

**{{.Event.Title}}** on {{.Date}} was not approved.
{{if .Reason}}
> {{.Reason}}
{{end}}
You can edit the event and it will be reviewed again.
`))},
}

// Render builds the subject and HTML body of a notification.
func Render(kind Kind, ev models.Event, to Recipient, reason string) (Message, error) {
	tpl, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}
	name := to.Name
	if name == "" {
		name = "there"
	}
	data := struct {
		Name   string
		Event  models.Event
		Date   string
		Reason string
	}{
		Name:   escapeMarkdown(name),
		Event:  models.Event{Title: escapeMarkdown(ev.Title), Location: escapeMarkdown(ev.Location)},
		Date:   ev.DateString(),
		Reason: escapeMarkdown(strings.ReplaceAll(reason, "\n", " ")),
	}

	var src bytes.Buffer
	if err := tpl.body.Execute(&src, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}
	var html bytes.Buffer
	if err := md.Convert(src.Bytes(), &html); err != nil {
		return Message{}, fmt.Errorf("convert %s: %w", kind, err)
	}
	return Message{
		Kind:     kind,
		Subject:  fmt.Sprintf(tpl.subject, ev.Title),
		Markdown: src.String(),
		HTML:     html.String(),
	}, nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "#", `\#`, "<", "&lt;", ">", "&gt;",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
