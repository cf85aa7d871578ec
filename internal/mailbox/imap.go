// Package mailbox retrieves the per-entity report mail over IMAP.
package mailbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// Config controls the IMAP source.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
	// SubjectPrefix is combined with the entity id to match report mails.
	SubjectPrefix string `mapstructure:"subject_prefix"`
	// SinceDays bounds the search window.
	SinceDays int `mapstructure:"since_days"`
}

// Source implements batch.SourceFetcher against an IMAP mailbox: it finds the
// latest mail whose subject is "<prefix> <entity id>" within the window and
// returns the message body. A missing mail yields an empty payload, which
// resolves to zero candidates rather than an entity failure.
//
// One connection is dialed per fetch; IMAP sessions are not safe for the
// concurrent per-entity workers to share.
type Source struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Source.
func New(cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("mailbox addr is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("mailbox credentials are required")
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "Internal Reports"
	}
	if cfg.SinceDays <= 0 {
		cfg.SinceDays = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, logger: logger}, nil
}

// Fetch implements batch.SourceFetcher.
func (s *Source) Fetch(ctx context.Context, entity batch.Entity) ([]byte, error) {
	c, err := client.DialTLS(s.cfg.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", s.cfg.Addr, err)
	}
	defer func() {
		if err := c.Logout(); err != nil {
			s.logger.Debug("imap logout failed", zap.Error(err))
		}
	}()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(s.cfg.Mailbox, true); err != nil {
		return nil, fmt.Errorf("select mailbox %s: %w", s.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().AddDate(0, 0, -s.cfg.SinceDays)
	criteria.Header.Add("Subject", fmt.Sprintf("%s %s", s.cfg.SubjectPrefix, entity.ID))
	seqs, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search mail for %s: %w", entity.ID, err)
	}
	if len(seqs) == 0 {
		s.logger.Warn("no report mail found", zap.String("entity_id", entity.ID))
		return nil, nil
	}
	s.logger.Info("report mail found",
		zap.String("entity_id", entity.ID),
		zap.Int("matches", len(seqs)),
	)

	// Use the latest matching message only.
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqs[len(seqs)-1])
	section := &imap.BodySectionName{}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var body []byte
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		parsed, err := readBodyParts(r)
		if err != nil {
			s.logger.Warn("mail body parse failed",
				zap.String("entity_id", entity.ID),
				zap.Error(err),
			)
			continue
		}
		body = append(body, parsed...)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch mail for %s: %w", entity.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mailbox fetch interrupted: %w", err)
	}
	return body, nil
}

// readBodyParts concatenates the text parts of a (possibly multipart) mail.
func readBodyParts(r io.Reader) ([]byte, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}
	var body []byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return body, fmt.Errorf("read mail part: %w", err)
		}
		if _, ok := part.Header.(*mail.InlineHeader); !ok {
			continue
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			return body, fmt.Errorf("read part body: %w", err)
		}
		body = append(body, content...)
	}
	return body, nil
}
