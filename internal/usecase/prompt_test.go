package usecase

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"geo-chat/internal/domain"
)

func TestBuildPrompt_Deterministic(t *testing.T) {
	prefs := domain.Preferences{Name: "Ana", Country: "Peru", Continent: "South America", Destination: "Cusco"}
	for _, mode := range []domain.Mode{domain.ModeDefault, domain.ModeStory, domain.ModeQuiz, domain.ModeFunFact} {
		first := BuildPrompt(mode, prefs)
		for i := 0; i < 5; i++ {
			require.Equal(t, first, BuildPrompt(mode, prefs), "mode=%q", mode)
		}
	}
}

func TestBuildPrompt_IncludesPersonaAndRules(t *testing.T) {
	content := BuildPrompt(domain.ModeDefault, domain.Preferences{})
	require.True(t, strings.HasPrefix(content, "You are GeoGuide"))
	require.Contains(t, content, "Output Rules:")
	require.Contains(t, content, "plain text only")
	require.Contains(t, content, "never more than 120 words")
	require.Contains(t, content, RefusalMessage)
}

func TestBuildPrompt_ModeBlocks(t *testing.T) {
	prefs := domain.Preferences{}
	require.Contains(t, BuildPrompt(domain.ModeStory, prefs), "storyteller")
	require.Contains(t, BuildPrompt(domain.ModeQuiz, prefs), "one geography question at a time")
	require.Contains(t, BuildPrompt(domain.ModeFunFact, prefs), "fun-fact")
	require.Contains(t, BuildPrompt(domain.ModeDefault, prefs), "neutral geography guide")
	require.Equal(t, BuildPrompt(domain.ModeDefault, prefs), BuildPrompt(domain.Mode("myth"), prefs))
}

func TestBuildPrompt_PreferencesBlock(t *testing.T) {
	content := BuildPrompt(domain.ModeDefault, domain.Preferences{Name: "  Ana  ", Country: "New\n Zealand"})
	require.Contains(t, content, "- Name: Ana\n")
	require.Contains(t, content, "- Favourite country: New Zealand\n")
	require.Contains(t, content, "- Favourite continent: -\n")
	require.Contains(t, content, "- Favourite destination: -\n")
	require.Contains(t, content, "ask the user for it")
}

func TestBuildPromptMessages_Order(t *testing.T) {
	history := make([]domain.ChatTurn, 15)
	for i := range history {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		history[i] = domain.ChatTurn{Role: role, Content: fmt.Sprintf("turn-%d", i)}
	}

	msgs := buildPromptMessages("instructions", history, "new question")
	require.Len(t, msgs, 12)
	require.Equal(t, domain.ChatTurn{Role: domain.RoleSystem, Content: "instructions"}, msgs[0])
	for i := 0; i < 10; i++ {
		require.Equal(t, history[5+i], msgs[1+i])
	}
	require.Equal(t, domain.ChatTurn{Role: domain.RoleUser, Content: "new question"}, msgs[11])
}

func TestBuildPromptMessages_EmptyHistory(t *testing.T) {
	msgs := buildPromptMessages("instructions", nil, "hello")
	require.Len(t, msgs, 2)
	require.Equal(t, domain.RoleSystem, msgs[0].Role)
	require.Equal(t, "hello", msgs[1].Content)
}
