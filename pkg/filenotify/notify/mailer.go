// Package notify delivers change notifications by email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/jamesainslie/filenotify/pkg/filenotify/logging"
	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
	"github.com/jamesainslie/filenotify/pkg/filenotify/recipients"
)

// TLS modes accepted in Options.TLS.
const (
	TLSOpportunistic = "opportunistic"
	TLSMandatory     = "mandatory"
	TLSImplicit      = "implicit"
	TLSNone          = "none"
)

// Sender delivers mail messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Options configures a Mailer.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string
	Timeout  time.Duration

	// Subject and Body are text/template sources. Empty uses the defaults.
	Subject string
	Body    string

	// RecipientsName is the file name of the recipient list in each directory.
	RecipientsName string
}

// Mailer emails the recipients listed in a directory about its changed files.
type Mailer struct {
	from           string
	recipientsName string
	templates      *Templates
	sender         Sender
	now            func() time.Time
	log            *logging.Logger
}

// NewMailer creates a Mailer that sends through the configured SMTP server.
func NewMailer(opts Options) (*Mailer, error) {
	if opts.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	client, err := mail.NewClient(opts.Host, clientOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return NewMailerWithSender(opts, client)
}

// NewMailerWithSender creates a Mailer that hands messages to sender.
func NewMailerWithSender(opts Options, sender Sender) (*Mailer, error) {
	if opts.From == "" {
		return nil, errors.New("sender address is required")
	}
	if opts.RecipientsName == "" {
		return nil, errors.New("recipient list name is required")
	}
	tmpl, err := ParseTemplates(opts.Subject, opts.Body)
	if err != nil {
		return nil, err
	}

	return &Mailer{
		from:           opts.From,
		recipientsName: opts.RecipientsName,
		templates:      tmpl,
		sender:         sender,
		now:            time.Now,
		log:            logging.Get("notify"),
	}, nil
}

// clientOptions maps opts onto go-mail options. A zero port is chosen from
// the TLS mode: 465 for implicit TLS, 25 without TLS and 587 otherwise.
func clientOptions(opts Options) []mail.Option {
	var co []mail.Option
	if opts.Timeout > 0 {
		co = append(co, mail.WithTimeout(opts.Timeout))
	}

	mode := strings.ToLower(opts.TLS)
	if mode == TLSImplicit {
		if opts.Port > 0 {
			co = append(co, mail.WithPort(opts.Port), mail.WithSSL())
		} else {
			co = append(co, mail.WithSSLPort(false))
		}
	} else {
		policy := mail.TLSOpportunistic
		switch mode {
		case TLSMandatory:
			policy = mail.TLSMandatory
		case TLSNone:
			policy = mail.NoTLS
		}
		if opts.Port > 0 {
			co = append(co, mail.WithPort(opts.Port), mail.WithTLSPolicy(policy))
		} else {
			co = append(co, mail.WithTLSPortPolicy(policy))
		}
	}

	if opts.Username != "" {
		co = append(co,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.Username),
			mail.WithPassword(opts.Password),
		)
	}
	return co
}

// Notify sends one message listing changed to every address in dir's
// recipient list. Any failure is returned to the caller.
func (m *Mailer) Notify(ctx context.Context, dir string, changed manifest.Manifest) error {
	addrs, err := recipients.Load(filepath.Join(dir, m.recipientsName))
	if err != nil {
		return err
	}

	msg, err := m.templates.Render(dir, changed, m.now())
	if err != nil {
		return err
	}

	mm, err := m.build(addrs, msg)
	if err != nil {
		return err
	}

	if err := m.sender.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}

	m.log.Info("mail sent", "dir", dir, "recipients", len(addrs), "files", len(changed))
	return nil
}

func (m *Mailer) build(addrs []string, msg Message) (*mail.Msg, error) {
	mm := mail.NewMsg()
	if err := mm.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := mm.To(addrs...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	mm.Subject(msg.Subject)
	mm.SetDate()
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	return mm, nil
}
