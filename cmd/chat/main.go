// Command chat is a terminal front end for the streaming chat endpoint. It runs
// the same onboarding as the widget, then relays each line to the backend and
// prints the reply as it streams in.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"geo-chat/internal/client"
	"geo-chat/internal/config"
	"geo-chat/internal/domain"
)

var prefPrompts = map[domain.PreferenceField]string{
	domain.PrefName:        "Your name",
	domain.PrefCountry:     "Favourite country",
	domain.PrefContinent:   "Favourite continent",
	domain.PrefDestination: "Dream destination",
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	session, err := client.NewSession(cfg.Endpoint,
		client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		client.WithLogger(logger),
		client.WithMaxContentLength(cfg.MaxMessageLength),
	)
	if err != nil {
		return err
	}
	session.Subscribe(newReplyPrinter(os.Stdout).onChange)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("GeoGuide - your geography companion. Type /help for commands.")
	if err := onboard(ctx, line, session); err != nil {
		return ignoreAbort(err)
	}

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			return ignoreAbort(err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(ctx, line, session, input)
			if err != nil {
				return ignoreAbort(err)
			}
			if quit {
				return nil
			}
			continue
		}

		session.SetInput(input)
		if session.Snapshot().Input == "" {
			fmt.Println("(only letters, digits and basic punctuation are allowed)")
			continue
		}
		_ = session.Send(ctx, "", false)
	}
}

// onboard asks for every preference and a mode, then lets the assistant greet.
func onboard(ctx context.Context, line *liner.State, session *client.Session) error {
	for _, f := range domain.PreferenceFields {
		v, err := line.Prompt(prefPrompts[f] + ": ")
		if err != nil {
			return err
		}
		session.SetPreference(f, strings.TrimSpace(v))
	}
	if err := chooseMode(line, session); err != nil {
		return err
	}
	if !session.OnboardingComplete() {
		fmt.Println("Some preferences are missing; GeoGuide may ask for them.")
	}
	_ = session.CompleteOnboarding(ctx)
	return nil
}

func chooseMode(line *liner.State, session *client.Session) error {
	for i, m := range domain.Modes {
		fmt.Printf("  %d) %s - %s\n", i+1, m.Label, m.Blurb)
	}
	for {
		v, err := line.Prompt("Pick a mode: ")
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil && n >= 1 && n <= len(domain.Modes) {
			session.SetMode(domain.Modes[n-1].Key)
			return nil
		}
		fmt.Printf("Enter a number between 1 and %d.\n", len(domain.Modes))
	}
}

func handleCommand(ctx context.Context, line *liner.State, session *client.Session, input string) (bool, error) {
	switch strings.Fields(input)[0] {
	case "/quit", "/exit":
		return true, nil
	case "/mode":
		if err := chooseMode(line, session); err != nil {
			return false, err
		}
		fmt.Println("Mode:", session.ModeLabel())
	case "/prefs":
		return false, onboard(ctx, line, session)
	case "/history":
		for _, m := range session.Snapshot().Messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
	default:
		fmt.Println("Commands: /mode, /prefs, /history, /quit")
	}
	return false, nil
}

func ignoreAbort(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// replyPrinter writes the growing assistant reply to out as chunks arrive.
type replyPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	reply   int
	printed string
	active  bool
}

func newReplyPrinter(out io.Writer) *replyPrinter {
	return &replyPrinter{out: out, reply: -1}
}

func (p *replyPrinter) onChange(st client.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !st.Busy {
		if p.active {
			fmt.Fprintln(p.out)
		}
		p.active, p.printed, p.reply = false, "", -1
		return
	}
	n := len(st.Messages)
	if !p.active {
		if n == 0 || st.Messages[n-1].Role != domain.RoleAssistant {
			return
		}
		p.active, p.reply = true, n-1
		fmt.Fprint(p.out, "geoguide> ")
	}
	if p.reply >= n {
		// A failed silent request drops its reply.
		return
	}
	content := st.Messages[p.reply].Content
	if rest, ok := strings.CutPrefix(content, p.printed); ok {
		fmt.Fprint(p.out, rest)
	} else {
		fmt.Fprint(p.out, "\n"+content)
	}
	p.printed = content
}
