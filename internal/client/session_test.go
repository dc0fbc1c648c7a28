package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"geo-chat/internal/domain"
	"geo-chat/internal/usecase"
)

// recordingBackend decodes each request and answers with reply, one byte per
// flushed write so multi-byte characters arrive split.
type recordingBackend struct {
	mu       sync.Mutex
	requests []domain.OutboundRequest
	status   int
	reply    string
}

func (b *recordingBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req domain.OutboundRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	b.requests = append(b.requests, req)
	status, reply := b.status, b.reply
	b.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		http.Error(w, "upstream failed", status)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	for i := 0; i < len(reply); i++ {
		_, _ = w.Write([]byte{reply[i]})
		flusher.Flush()
	}
}

func (b *recordingBackend) lastRequest(t *testing.T) domain.OutboundRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.requests)
	return b.requests[len(b.requests)-1]
}

func newTestSession(t *testing.T, h http.Handler) *Session {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := NewSession(srv.URL, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return s
}

func TestNewSession_RequiresEndpoint(t *testing.T) {
	_, err := NewSession("  ")
	require.Error(t, err)
}

func TestSend_AssemblesStreamedReply(t *testing.T) {
	backend := &recordingBackend{reply: "café – olé 🌍"}
	s := newTestSession(t, backend)

	var mu sync.Mutex
	var seen []string
	s.Subscribe(func(st State) {
		if n := len(st.Messages); n > 0 && st.Messages[n-1].Role == domain.RoleAssistant {
			mu.Lock()
			seen = append(seen, st.Messages[n-1].Content)
			mu.Unlock()
		}
	})

	s.SetInput("  Tell me about France  ")
	require.NoError(t, s.Send(context.Background(), "", false))

	st := s.Snapshot()
	require.False(t, st.Busy)
	require.Empty(t, st.Input)
	require.Equal(t, []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "Tell me about France"},
		{Role: domain.RoleAssistant, Content: "café – olé 🌍"},
	}, st.Messages)
	require.Equal(t, "Tell me about France", backend.lastRequest(t).Message)

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, len(seen), 2)
	for _, partial := range seen {
		require.True(t, utf8.ValidString(partial), "partial %q", partial)
	}
}

func TestSend_EmptyReply(t *testing.T) {
	s := newTestSession(t, &recordingBackend{reply: ""})

	require.NoError(t, s.Send(context.Background(), "hello", false))
	st := s.Snapshot()
	require.Len(t, st.Messages, 2)
	require.Equal(t, "", st.Messages[1].Content)
}

func TestSend_EmptyMessageIsNoop(t *testing.T) {
	backend := &recordingBackend{reply: "unused"}
	s := newTestSession(t, backend)

	s.SetInput("   ")
	require.NoError(t, s.Send(context.Background(), "", false))
	require.Empty(t, s.Snapshot().Messages)
	require.Empty(t, backend.requests)
}

func TestSend_SingleRequestInFlight(t *testing.T) {
	var calls atomic.Int32
	arrived := make(chan struct{})
	release := make(chan struct{})
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		close(arrived)
		<-release
		_, _ = io.WriteString(w, "done")
	}))

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "first", false) }()

	<-arrived
	require.True(t, s.Snapshot().Busy)
	require.ErrorIs(t, s.Send(context.Background(), "second", false), ErrBusy)
	require.ErrorIs(t, s.CompleteOnboarding(context.Background()), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, int32(1), calls.Load())

	st := s.Snapshot()
	require.False(t, st.Busy)
	require.Equal(t, []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleAssistant, Content: "done"},
	}, st.Messages)
}

func TestSend_FailureShowsFallback(t *testing.T) {
	s := newTestSession(t, &recordingBackend{status: http.StatusBadGateway})

	err := s.Send(context.Background(), "hello", false)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	st := s.Snapshot()
	require.False(t, st.Busy)
	require.Equal(t, []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: FallbackMessage},
	}, st.Messages)
}

func TestSend_SilentFailureLeavesNoTrace(t *testing.T) {
	s := newTestSession(t, &recordingBackend{status: http.StatusInternalServerError})

	require.Error(t, s.Send(context.Background(), GreetingPrompt, true))
	st := s.Snapshot()
	require.Empty(t, st.Messages)
	require.False(t, st.Busy)
}

func TestSend_UnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := NewSession(url, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	require.Error(t, s.Send(context.Background(), "hello", false))
	st := s.Snapshot()
	require.False(t, st.Busy)
	require.Equal(t, FallbackMessage, st.Messages[len(st.Messages)-1].Content)
}

func TestSend_ForwardsRecentHistoryBeforeSend(t *testing.T) {
	backend := &recordingBackend{reply: "ok"}
	s := newTestSession(t, backend)
	s.SetPreference(domain.PrefCountry, "Chile")
	s.SetMode(domain.ModeQuiz)

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Send(context.Background(), "question", false))
	}
	before := s.Snapshot().Messages
	require.Len(t, before, 12)

	require.NoError(t, s.Send(context.Background(), "next", false))
	req := backend.lastRequest(t)
	require.Equal(t, "next", req.Message)
	require.Equal(t, before[2:], req.History)
	require.Equal(t, "Chile", req.Prefs.Country)
	require.Equal(t, domain.ModeQuiz, req.Mode)
}

func TestSend_FirstRequestHasEmptyHistoryArray(t *testing.T) {
	bodies := make(chan map[string]json.RawMessage, 1)
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		bodies <- raw
	}))

	require.NoError(t, s.Send(context.Background(), "hi", false))
	raw := <-bodies
	require.JSONEq(t, `[]`, string(raw["history"]))
	require.JSONEq(t, `{}`, string(raw["prefs"]))
}

func TestSend_DisplayHistoryIsCapped(t *testing.T) {
	s := newTestSession(t, &recordingBackend{reply: "a"})

	for i := 0; i < MaxDisplayTurns/2+3; i++ {
		require.NoError(t, s.Send(context.Background(), "q", false))
	}
	st := s.Snapshot()
	require.Len(t, st.Messages, MaxDisplayTurns)
	require.Equal(t, domain.RoleUser, st.Messages[0].Role)
	require.Equal(t, "a", st.Messages[len(st.Messages)-1].Content)
}

func TestSend_ClampsLongRepliesInHistory(t *testing.T) {
	var mu sync.Mutex
	var histories [][]domain.ChatTurn
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		req, err := usecase.ValidateRequest(raw, domain.DefaultMaxContentLength)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		histories = append(histories, req.History)
		mu.Unlock()
		_, _ = io.WriteString(w, strings.Repeat("é", domain.DefaultMaxContentLength+1))
	}))

	require.NoError(t, s.Send(context.Background(), "tell me everything", false))
	require.NoError(t, s.Send(context.Background(), "and more", false))

	st := s.Snapshot()
	require.Len(t, st.Messages, 4)
	require.Equal(t, domain.DefaultMaxContentLength+1, utf8.RuneCountInString(st.Messages[1].Content))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, histories, 2)
	require.Len(t, histories[1], 2)
	for _, turn := range histories[1] {
		require.LessOrEqual(t, utf8.RuneCountInString(turn.Content), domain.DefaultMaxContentLength)
	}
}

func TestClampHistory(t *testing.T) {
	turns := []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "short"},
		{Role: domain.RoleAssistant, Content: "ñandú"},
	}
	got := clampHistory(turns, 3)
	require.Equal(t, "sho", got[0].Content)
	require.Equal(t, "ñan", got[1].Content)
}

func TestCompleteOnboarding_SendsSilentGreeting(t *testing.T) {
	backend := &recordingBackend{reply: "Hello Ana!"}
	s := newTestSession(t, backend)
	for _, f := range domain.PreferenceFields {
		s.SetPreference(f, "Ana")
	}
	require.False(t, s.OnboardingComplete())
	s.SetMode(domain.ModeStory)
	require.True(t, s.OnboardingComplete())
	require.Equal(t, "Story-telling", s.ModeLabel())

	require.NoError(t, s.CompleteOnboarding(context.Background()))

	st := s.Snapshot()
	require.False(t, st.ShowPrefs)
	require.Equal(t, []domain.ChatTurn{{Role: domain.RoleAssistant, Content: "Hello Ana!"}}, st.Messages)
	require.Equal(t, GreetingPrompt, backend.lastRequest(t).Message)
}

func TestSend_RespectsContextCancellation(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, s.Send(ctx, "hello", false))
	require.False(t, s.Snapshot().Busy)
}

func TestSessionMutations(t *testing.T) {
	s, err := NewSession("http://localhost")
	require.NoError(t, err)

	st := s.Snapshot()
	require.True(t, st.ShowPrefs)
	require.False(t, st.Expanded)

	s.ToggleExpanded()
	s.SetShowPrefs(false)
	s.SetPreference(domain.PrefName, "Zoë <b>")
	s.SetInput("Where is K2?!")

	st = s.Snapshot()
	require.True(t, st.Expanded)
	require.False(t, st.ShowPrefs)
	require.Equal(t, "Zo b", st.Prefs.Name)
	require.Equal(t, "Where is K2?", st.Input)
	require.Equal(t, "", s.ModeLabel())
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Hello, world.", want: "Hello, world."},
		{in: `It's "Peru"-ish?`, want: `It's "Peru"-ish?`},
		{in: "a<script>b</script>", want: "ascriptbscript"},
		{in: "Ñandú 42!", want: "and 42"},
		{in: "line\tbreak\n", want: "line\tbreak\n"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Sanitize(tc.in), tc.in)
	}

	long := make([]byte, MaxInputLength+50)
	for i := range long {
		long[i] = 'x'
	}
	require.Len(t, Sanitize(string(long)), MaxInputLength)
}

func TestCompletePrefix(t *testing.T) {
	e := []byte("é")
	require.Equal(t, 0, completePrefix(e[:1]))
	require.Equal(t, 2, completePrefix(e))
	require.Equal(t, 3, completePrefix([]byte("abc")))
	require.Equal(t, 1, completePrefix(append([]byte("a"), []byte("🌍")[:3]...)))
	require.Equal(t, 0, completePrefix(nil))
}
