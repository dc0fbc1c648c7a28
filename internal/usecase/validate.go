package usecase

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"geo-chat/internal/domain"
)

// ValidateRequest decodes an untrusted request body and checks its shape and
// bounds. Lengths are counted in Unicode code points and bounded by maxLen
// (domain.DefaultMaxContentLength when maxLen <= 0). On success the returned
// history holds at most the domain.HistoryWindow most recent turns.
//
// A body that is not a JSON object fails with ErrorMalformedInput; any other
// violation fails with ErrorValidation.
func ValidateRequest(raw []byte, maxLen int) (domain.OutboundRequest, error) {
	if maxLen <= 0 {
		maxLen = domain.DefaultMaxContentLength
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.OutboundRequest{}, &Error{Code: ErrorMalformedInput, Reason: "invalid_json", Detail: "request body must be a JSON object", Err: err}
	}
	if fields == nil {
		return domain.OutboundRequest{}, &Error{Code: ErrorMalformedInput, Reason: "invalid_json", Detail: "request body must be a JSON object"}
	}

	message, err := validateMessage(fields["message"], maxLen)
	if err != nil {
		return domain.OutboundRequest{}, err
	}
	history, err := validateHistory(fields["history"], maxLen)
	if err != nil {
		return domain.OutboundRequest{}, err
	}
	prefs, err := validatePrefs(fields["prefs"], maxLen)
	if err != nil {
		return domain.OutboundRequest{}, err
	}
	mode, err := validateMode(fields["config"])
	if err != nil {
		return domain.OutboundRequest{}, err
	}

	return domain.OutboundRequest{
		Message: message,
		History: domain.RecentHistory(history),
		Prefs:   prefs,
		Mode:    mode,
	}, nil
}

func validateMessage(raw json.RawMessage, maxLen int) (string, error) {
	if isAbsent(raw) {
		return "", invalid("message_missing", "message is required")
	}
	message, ok := decodeString(raw)
	if !ok {
		return "", invalid("message_not_string", "message must be a string")
	}
	if strings.TrimSpace(message) == "" {
		return "", invalid("message_empty", "message must not be empty")
	}
	if utf8.RuneCountInString(message) > maxLen {
		return "", invalid("message_too_long", "message exceeds %d characters", maxLen)
	}
	return message, nil
}

func validateHistory(raw json.RawMessage, maxLen int) ([]domain.ChatTurn, error) {
	if isAbsent(raw) {
		return nil, invalid("history_missing", "history is required")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalid("history_not_array", "history must be an array")
	}

	history := make([]domain.ChatTurn, 0, len(items))
	for i, item := range items {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(item, &entry); err != nil || entry == nil {
			return nil, invalid("history_item_invalid", "history[%d] must be an object", i)
		}
		role, ok := decodeString(entry["role"])
		if !ok || !domain.Role(role).Valid() {
			return nil, invalid("history_item_role_invalid", "history[%d].role must be one of user, assistant, system", i)
		}
		content, ok := decodeString(entry["content"])
		if !ok {
			return nil, invalid("history_item_content_invalid", "history[%d].content must be a string", i)
		}
		if utf8.RuneCountInString(content) > maxLen {
			return nil, invalid("history_item_too_long", "history[%d].content exceeds %d characters", i, maxLen)
		}
		history = append(history, domain.ChatTurn{Role: domain.Role(role), Content: content})
	}
	return history, nil
}

func validatePrefs(raw json.RawMessage, maxLen int) (domain.Preferences, error) {
	if isAbsent(raw) {
		return domain.Preferences{}, invalid("prefs_missing", "prefs is required")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.Preferences{}, invalid("prefs_not_object", "prefs must be an object")
	}

	var prefs domain.Preferences
	for _, f := range domain.PreferenceFields {
		v := fields[string(f)]
		if isAbsent(v) {
			continue
		}
		s, ok := decodeString(v)
		if !ok {
			return domain.Preferences{}, invalid("prefs_field_not_string", "prefs.%s must be a string", f)
		}
		if utf8.RuneCountInString(s) > maxLen {
			return domain.Preferences{}, invalid("prefs_field_too_long", "prefs.%s exceeds %d characters", f, maxLen)
		}
		prefs = prefs.With(f, s)
	}
	return prefs, nil
}

func validateMode(raw json.RawMessage) (domain.Mode, error) {
	if isAbsent(raw) {
		return domain.ModeDefault, nil
	}
	s, ok := decodeString(raw)
	if !ok {
		return "", invalid("mode_not_string", "config must be a string")
	}
	mode := domain.Mode(s)
	if !mode.Known() {
		return "", invalid("mode_invalid", "config must be one of %s", knownModes())
	}
	return mode, nil
}

func knownModes() string {
	keys := make([]string, 0, len(domain.Modes))
	for _, m := range domain.Modes {
		keys = append(keys, string(m.Key))
	}
	return strings.Join(keys, ", ")
}

// isAbsent reports whether a field was omitted or explicitly null.
func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeString decodes raw as a JSON string. Missing and null values are not strings.
func decodeString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
