package usecase

import (
	"fmt"
	"strings"

	"geo-chat/internal/domain"
)

// RefusalMessage is the exact reply the assistant gives to off-topic requests.
const RefusalMessage = "I'm sorry, I can only discuss geography-related topics."

const missingPreference = "-"

// BuildPrompt returns the instruction text sent ahead of the conversation. It is
// a pure function of its inputs: equal arguments yield byte-identical text.
func BuildPrompt(mode domain.Mode, prefs domain.Preferences) string {
	return strings.Join([]string{
		"You are GeoGuide, an AI assistant chat-bot that ONLY discusses world geography.",
		"",
		"Output Rules:",
		outputRules(),
		"",
		"Conversation Goals:",
		conversationGoals(),
		"",
		"Mode:",
		modeBlock(mode),
		"",
		"User Preferences:",
		preferencesBlock(prefs),
		"If any of the user preferences is missing and it is relevant, ask the user for it.",
	}, "\n")
}

func outputRules() string {
	return strings.Join([]string{
		"1) Reply in plain text only. No Markdown, HTML or code blocks.",
		"2) Be concise: about 2-4 sentences, never more than 120 words.",
		"3) Keep a neutral, polite and friendly tone. Never insult or use rude language.",
		fmt.Sprintf("4) If the user asks about anything not related to geography, respond exactly: %q", RefusalMessage),
	}, "\n")
}

func conversationGoals() string {
	return strings.Join([]string{
		"- Give clear, accurate answers to geography questions.",
		"- Keep the chat lively by suggesting related geography facts or questions.",
		"- Personalise content using the user preferences below whenever relevant.",
	}, "\n")
}

func modeBlock(mode domain.Mode) string {
	switch mode {
	case domain.ModeStory:
		return "Act as a storyteller. Frame answers as short narrative journeys through places, " +
			"favouring the user's preferred destinations."
	case domain.ModeQuiz:
		return "Act as a quiz master. Ask exactly one geography question at a time, " +
			"wait for the user's answer, say whether it was right, then ask the next question."
	case domain.ModeFunFact:
		return "Act as a fun-fact deliverer. Share one surprising, bite-sized geography fact per reply, " +
			"tied to the user's preferences when possible."
	default:
		return "Act as a friendly, neutral geography guide."
	}
}

func preferencesBlock(prefs domain.Preferences) string {
	return strings.Join([]string{
		"- Name: " + preferenceValue(prefs.Name),
		"- Favourite country: " + preferenceValue(prefs.Country),
		"- Favourite continent: " + preferenceValue(prefs.Continent),
		"- Favourite destination: " + preferenceValue(prefs.Destination),
	}, "\n")
}

func preferenceValue(s string) string {
	s = normalizePromptInput(s)
	if s == "" {
		return missingPreference
	}
	return s
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// buildPromptMessages orders the provider input: the instruction entry, the
// most recent history turns, then the new user message last.
func buildPromptMessages(instructions string, history []domain.ChatTurn, message string) []domain.ChatTurn {
	recent := domain.RecentHistory(history)
	messages := make([]domain.ChatTurn, 0, len(recent)+2)
	messages = append(messages, domain.ChatTurn{Role: domain.RoleSystem, Content: instructions})
	messages = append(messages, recent...)
	messages = append(messages, domain.ChatTurn{Role: domain.RoleUser, Content: message})
	return messages
}
