// Package mailbox pulls unread operator replies out of an IMAP inbox.
package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

// Reply is one inbound message awaiting command processing.
type Reply struct {
	UID     uint32
	From    string
	Subject string
	Body    string
	Date    time.Time
}

// Fetcher yields unread replies and acknowledges processed ones.
type Fetcher interface {
	FetchUnread(ctx context.Context) ([]Reply, error)
	MarkProcessed(ctx context.Context, uids []uint32) error
}

// Config locates the inbox and restricts who may issue commands.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	// AllowedSenders lists addresses whose replies are acted on. Empty
	// means any sender.
	AllowedSenders []string
	Timeout        time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		if c.UseSSL {
			c.Port = 993
		} else {
			c.Port = 143
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 25 * time.Second
	}
	return c
}

// IMAP fetches replies over a short-lived connection per poll.
type IMAP struct {
	cfg     Config
	allowed map[string]bool
	log     logx.Logger
}

func NewIMAP(cfg Config, log logx.Logger) *IMAP {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedSenders))
	for _, s := range cfg.AllowedSenders {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			allowed[s] = true
		}
	}
	return &IMAP{cfg: cfg, allowed: allowed, log: log}
}

func (m *IMAP) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", strings.TrimSpace(m.cfg.Host), m.cfg.Port)
	var (
		c   *client.Client
		err error
	)
	if m.cfg.UseSSL {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: strings.TrimSpace(m.cfg.Host)})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	c.Timeout = m.cfg.Timeout

	if err := c.Login(strings.TrimSpace(m.cfg.Username), m.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}
	return c, nil
}

// FetchUnread returns unseen messages from allowed senders without marking
// them seen. Messages from other senders stay unread and are skipped.
func (m *IMAP) FetchUnread(ctx context.Context) ([]Reply, error) {
	c, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search UNSEEN: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	msgCh := make(chan *imap.Message, 16)
	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- c.Fetch(seqset, items, msgCh)
	}()

	var replies []Reply
	for msg := range msgCh {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		reply, ok := m.decode(msg, section)
		if !ok {
			continue
		}
		if !m.senderAllowed(reply.From) {
			m.log.Debug("ignoring reply from unlisted sender",
				logx.String("from", reply.From))
			continue
		}
		replies = append(replies, reply)
	}
	if err := <-fetchErr; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	return replies, nil
}

// MarkProcessed flags the given messages as seen so the next poll skips them.
func (m *IMAP) MarkProcessed(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := m.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout() }()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("imap store \\Seen: %w", err)
	}
	return nil
}

func (m *IMAP) senderAllowed(from string) bool {
	if len(m.allowed) == 0 {
		return true
	}
	return m.allowed[strings.ToLower(strings.TrimSpace(from))]
}

func (m *IMAP) decode(msg *imap.Message, section *imap.BodySectionName) (Reply, bool) {
	if msg == nil {
		return Reply{}, false
	}
	r := msg.GetBody(section)
	if r == nil {
		return Reply{}, false
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return Reply{}, false
	}

	reply := Reply{UID: msg.Uid}
	if msg.Envelope != nil {
		reply.Subject = strings.TrimSpace(msg.Envelope.Subject)
		reply.Date = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 && msg.Envelope.From[0] != nil {
			reply.From = strings.TrimSpace(msg.Envelope.From[0].Address())
		}
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		reply.Body = rawBodyFallback(raw)
		return reply, reply.From != ""
	}
	if reply.From == "" {
		if list, err := reader.Header.AddressList("From"); err == nil && len(list) > 0 {
			reply.From = strings.TrimSpace(list[0].Address)
		}
	}
	if reply.Subject == "" {
		if subject, err := reader.Header.Subject(); err == nil {
			reply.Subject = strings.TrimSpace(subject)
		}
	}
	reply.Body = textBody(reader)
	if reply.Body == "" {
		reply.Body = rawBodyFallback(raw)
	}
	return reply, reply.From != ""
}

// textBody prefers the text/plain part; HTML is a last resort since the
// command grammar is line oriented.
func textBody(r *mail.Reader) string {
	var plain, html string
	for {
		part, err := r.NextPart()
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, _ := io.ReadAll(part.Body)
		text := strings.TrimSpace(string(b))
		if text == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(ct)) {
		case "text/plain":
			if plain == "" {
				plain = text
			}
		case "text/html":
			if html == "" {
				html = text
			}
		}
	}
	if plain != "" {
		return plain
	}
	return html
}

func rawBodyFallback(raw []byte) string {
	text := string(raw)
	idx := strings.Index(text, "\r\n\r\n")
	sep := 4
	if idx < 0 {
		idx = strings.Index(text, "\n\n")
		sep = 2
	}
	if idx >= 0 && idx+sep < len(text) {
		text = text[idx+sep:]
	}
	return strings.TrimSpace(text)
}
