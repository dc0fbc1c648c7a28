// Package client is the consumer side of the streaming chat contract: an
// in-memory session that posts chat turns and assembles the streamed reply.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"geo-chat/internal/domain"
	"geo-chat/internal/observability"
)

const (
	// MaxInputLength bounds the composer input and preference values, in runes.
	MaxInputLength = 200
	// MaxDisplayTurns bounds the turns kept for display; the oldest are dropped.
	MaxDisplayTurns = 200
	// GreetingPrompt is sent silently once onboarding completes.
	GreetingPrompt = "Greet the user"
	// FallbackMessage replaces a failed reply to a visible send.
	FallbackMessage = "Sorry, something went wrong. Please try again."

	readBufferSize = 512
)

// ErrBusy is returned by Send while another request is in flight.
var ErrBusy = errors.New("client: a request is already in flight")

// StatusError reports a non-200 response from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: unexpected status %d: %s", e.StatusCode, e.Body)
}

// State is a point-in-time copy of the session.
type State struct {
	Messages  []domain.ChatTurn
	Input     string
	Prefs     domain.Preferences
	Mode      domain.Mode
	ShowPrefs bool
	Expanded  bool
	Busy      bool
}

// Session holds the widget state and talks to the streaming endpoint. All
// mutations go through its methods; it is safe for concurrent use.
type Session struct {
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
	maxContent int

	mu          sync.Mutex
	state       State
	subscribers []func(State)
}

type Option func(*Session)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithMaxContentLength sets the per-turn bound, in runes, applied to history
// sent to the backend. It must match the backend's MAX_MESSAGE_LENGTH.
func WithMaxContentLength(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxContent = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSession returns a session posting to endpoint, with the preference form
// shown and no conversation yet.
func NewSession(endpoint string, opts ...Option) (*Session, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("client: endpoint must not be empty")
	}
	s := &Session{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		log:        observability.Logger(),
		maxContent: domain.DefaultMaxContentLength,
		state:      State{ShowPrefs: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subscribe registers fn to be called with a snapshot after every change,
// including every streamed chunk. fn runs on the goroutine that made the change.
func (s *Session) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := s.state
	st.Messages = append([]domain.ChatTurn(nil), s.state.Messages...)
	return st
}

// update applies fn under the lock and then notifies subscribers.
func (s *Session) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.snapshotLocked()
	subs := append([]func(State)(nil), s.subscribers...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Session) SetInput(v string) {
	v = Sanitize(v)
	s.update(func(st *State) { st.Input = v })
}

func (s *Session) SetPreference(f domain.PreferenceField, v string) {
	v = Sanitize(v)
	s.update(func(st *State) { st.Prefs = st.Prefs.With(f, v) })
}

func (s *Session) SetMode(m domain.Mode) {
	s.update(func(st *State) { st.Mode = m })
}

func (s *Session) SetShowPrefs(show bool) {
	s.update(func(st *State) { st.ShowPrefs = show })
}

func (s *Session) ToggleExpanded() {
	s.update(func(st *State) { st.Expanded = !st.Expanded })
}

// OnboardingComplete reports whether every preference and a mode are set.
func (s *Session) OnboardingComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Prefs.Complete() && s.state.Mode != domain.ModeDefault
}

func (s *Session) ModeLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode.Label()
}

// CompleteOnboarding hides the preference form and asks the assistant for a
// greeting without showing the request in the conversation.
func (s *Session) CompleteOnboarding(ctx context.Context) error {
	s.SetShowPrefs(false)
	return s.Send(ctx, GreetingPrompt, true)
}

// Send posts one chat turn and streams the reply into the conversation. The
// message is override when non-empty, otherwise the trimmed input. A system
// send is not shown as a user turn.
//
// Send returns ErrBusy without side effects while another Send is in flight
// and does nothing for an empty message. On failure a visible send shows
// FallbackMessage in place of the reply; a system send drops the reply.
func (s *Session) Send(ctx context.Context, override string, system bool) error {
	s.mu.Lock()
	if s.state.Busy {
		s.mu.Unlock()
		return ErrBusy
	}
	message := override
	if message == "" {
		message = strings.TrimSpace(s.state.Input)
	}
	if message == "" {
		s.mu.Unlock()
		return nil
	}
	req := domain.OutboundRequest{
		Message: message,
		History: clampHistory(domain.RecentHistory(s.state.Messages), s.maxContent),
		Prefs:   s.state.Prefs,
		Mode:    s.state.Mode,
	}
	s.state.Busy = true
	s.mu.Unlock()

	defer s.update(func(st *State) { st.Busy = false })

	var reply int
	s.update(func(st *State) {
		if !system {
			st.Messages = append(st.Messages, domain.ChatTurn{Role: domain.RoleUser, Content: message})
			st.Input = ""
		}
		st.Messages = append(st.Messages, domain.ChatTurn{Role: domain.RoleAssistant})
		if extra := len(st.Messages) - MaxDisplayTurns; extra > 0 {
			st.Messages = append([]domain.ChatTurn(nil), st.Messages[extra:]...)
		}
		reply = len(st.Messages) - 1
	})

	err := s.stream(ctx, req, func(chunk string) {
		s.update(func(st *State) { st.Messages[reply].Content += chunk })
	})
	if err == nil {
		return nil
	}

	if system {
		s.log.Warn("silent chat request failed", "err", err)
		s.update(func(st *State) {
			st.Messages = append(st.Messages[:reply], st.Messages[reply+1:]...)
		})
	} else {
		s.log.Error("chat request failed", "err", err)
		s.update(func(st *State) { st.Messages[reply].Content = FallbackMessage })
	}
	return err
}

// stream posts req and calls onChunk with each decoded piece of the body.
// Code points split across reads are held back until complete.
func (s *Session) stream(ctx context.Context, req domain.OutboundRequest, onChunk func(string)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("client: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("client: post: %w", err)
	}
	if resp.Body == nil {
		return errors.New("client: response has no body")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	buf := make([]byte, readBufferSize)
	var pending []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completePrefix(pending)
			if cut > 0 {
				onChunk(string(pending[:cut]))
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("client: read: %w", readErr)
		}
	}
	if len(pending) > 0 {
		onChunk(string(pending))
	}
	return nil
}

// clampHistory truncates each turn to maxRunes. Replies are not length-bounded
// by the backend, but history content sent back to it is.
func clampHistory(turns []domain.ChatTurn, maxRunes int) []domain.ChatTurn {
	for i, t := range turns {
		if utf8.RuneCountInString(t.Content) <= maxRunes {
			continue
		}
		runes := []rune(t.Content)
		turns[i].Content = string(runes[:maxRunes])
	}
	return turns
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// Sanitize keeps ASCII letters and digits, whitespace and the punctuation
// . , - ? ' " and truncates the result to MaxInputLength runes.
func Sanitize(v string) string {
	var b strings.Builder
	n := 0
	for _, r := range v {
		if n == MaxInputLength {
			break
		}
		if allowedInputRune(r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

func allowedInputRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune(".,-?'\"", r):
		return true
	}
	return unicode.IsSpace(r)
}
