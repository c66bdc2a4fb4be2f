package notify

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
)

// DefaultSubject is the subject template used when none is configured.
const DefaultSubject = `[filenotify] {{.Count}} new or changed {{if eq .Count 1}}file{{else}}files{{end}} in {{.Dir}}`

// DefaultBody is the plain-text body template used when none is configured.
const DefaultBody = `The following files in {{.Dir}} are new or have changed:

{{range .Files}}  {{.Name}}
      modified {{.Modified.Format "2006-01-02 15:04:05 MST"}} ({{.Age}})
{{end}}
-- 
filenotify on {{.Host}}
`

// FileChange is one changed file as presented in a message.
type FileChange struct {
	Name     string
	Modified time.Time
	Age      string
}

// Data is the value templates are executed against.
type Data struct {
	Dir   string
	Host  string
	Count int
	Files []FileChange
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Templates renders notification messages.
type Templates struct {
	subject *template.Template
	body    *template.Template
}

// ParseTemplates compiles subject and body templates. Empty strings select
// DefaultSubject and DefaultBody.
func ParseTemplates(subject, body string) (*Templates, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if body == "" {
		body = DefaultBody
	}

	st, err := template.New("subject").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("parsing subject template: %w", err)
	}
	bt, err := template.New("body").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing body template: %w", err)
	}
	return &Templates{subject: st, body: bt}, nil
}

// NewData builds template data for the changes in dir, listing files by name.
func NewData(dir string, changed manifest.Manifest, now time.Time) Data {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	files := make([]FileChange, 0, len(changed))
	for _, name := range changed.Names() {
		mod := changed[name].Time()
		files = append(files, FileChange{
			Name:     name,
			Modified: mod,
			Age:      humanize.RelTime(mod, now, "ago", "from now"),
		})
	}

	return Data{Dir: dir, Host: host, Count: len(files), Files: files}
}

// Render executes the templates for the changes in dir.
func (t *Templates) Render(dir string, changed manifest.Manifest, now time.Time) (Message, error) {
	data := NewData(dir, changed, now)

	var subj, body bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return Message{}, fmt.Errorf("rendering subject: %w", err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("rendering body: %w", err)
	}

	// Subjects are a single header line.
	subject := strings.Join(strings.Fields(subj.String()), " ")
	return Message{Subject: subject, Body: body.String()}, nil
}
