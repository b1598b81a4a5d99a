// Package console keeps the state of an interactive relay conversation.
package console

import (
	"context"
	"path"
	"strings"

	"github.com/mvdan/xurls"

	"github.com/hpn/hpn-ask-relay/internal/domain"
	"github.com/hpn/hpn-ask-relay/internal/responder"
)

// Asker answers conversations.
type Asker interface {
	Ask(ctx context.Context, messages []domain.Message, isImage bool, opts responder.Options) domain.Result
}

// Fetcher downloads an image and returns its identifier.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Turn describes what happened to one line of input.
type Turn struct {
	// ImageURL is the link that was fetched, if any.
	ImageURL string

	// ImageUID is the stored identifier of ImageURL.
	ImageUID string

	// FetchErr is set when ImageURL could not be downloaded. The line is then asked as text.
	FetchErr error

	Result domain.Result
}

// Session holds the conversation history.
type Session struct {
	asker   Asker
	fetcher Fetcher
	opts    responder.Options
	history []domain.Message
}

// NewSession starts an empty conversation. A zero opts uses the asker's defaults.
func NewSession(asker Asker, fetcher Fetcher, opts responder.Options) *Session {
	return &Session{asker: asker, fetcher: fetcher, opts: opts}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.Message {
	out := make([]domain.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Reset forgets the conversation.
func (s *Session) Reset() {
	s.history = nil
}

// Send asks one line. When the line holds an image link the image is fetched,
// the link is replaced by its marker and only this message is sent as an image
// request, so the newest image is the one described.
func (s *Session) Send(ctx context.Context, line string) Turn {
	var turn Turn

	msg := domain.Message{Role: domain.RoleUser, Content: line}
	if url := FindImageURL(line); url != "" {
		turn.ImageURL = url
		uid, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			turn.FetchErr = err
		} else {
			turn.ImageUID = uid
			text := strings.TrimSpace(strings.ReplaceAll(line, url, ""))
			msg.Content = text + domain.FormatImageUID(uid)
		}
	}

	s.history = append(s.history, msg)
	if turn.ImageUID != "" {
		turn.Result = s.asker.Ask(ctx, []domain.Message{msg}, true, s.opts)
	} else {
		turn.Result = s.asker.Ask(ctx, s.History(), false, s.opts)
	}

	if turn.Result.OK() {
		s.history = append(s.history, domain.Message{Role: domain.RoleAssistant, Content: turn.Result.Text})
	}
	return turn
}

// FindImageURL returns the first link in text that points at an image file, or "".
func FindImageURL(text string) string {
	for _, u := range xurls.Relaxed.FindAllString(text, -1) {
		p := u
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		if imageExtensions[strings.ToLower(path.Ext(p))] {
			return u
		}
	}
	return ""
}
