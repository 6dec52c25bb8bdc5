package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func openAIResponse(content string, toolCalls []map[string]any, finishReason string) map[string]any {
	message := map[string]any{
		"role":    "assistant",
		"content": content,
	}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
	}
	return map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       message,
			"finish_reason": finishReason,
		}},
		"usage": map[string]any{
			"prompt_tokens":     7,
			"completion_tokens": 5,
			"total_tokens":      12,
		},
	}
}

func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	var req map[string]any
	if err := json.Unmarshal(b, &req); err != nil {
		t.Fatalf("parse request: %v", err)
	}
	return req
}

func TestOpenAISendTurn_ToolCallArgumentsParsed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = decodeRequest(t, r)
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIResponse("", []map[string]any{{
			"id":   "call_1",
			"type": "function",
			"function": map[string]any{
				"name":      "search",
				"arguments": `{"query":"iceland","limit":3}`,
			},
		}}, "tool_calls"))
	}))
	t.Cleanup(srv.Close)

	a := NewOpenAIAdapter("k", srv.URL+"/v1")
	got, err := a.SendTurn(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, &Config{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}

	if got.FinishReason != FinishToolUse {
		t.Fatalf("FinishReason: got %q want %q", got.FinishReason, FinishToolUse)
	}
	if len(got.ToolCalls) != 1 {
		t.Fatalf("ToolCalls: got %d want 1", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.Name != "search" || tc.ID != "call_1" {
		t.Fatalf("ToolCall: got %+v", tc)
	}
	if tc.Arguments["query"] != "iceland" {
		t.Fatalf("Arguments: got %v", tc.Arguments)
	}
	if got.Usage.InputTokens != 7 || got.Usage.OutputTokens != 5 || got.Usage.TotalTokens != 12 {
		t.Fatalf("Usage: got %+v", got.Usage)
	}
}

func TestOpenAISendTurn_MessageTranslation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)

		msgs, _ := req["messages"].([]any)
		if len(msgs) != 4 {
			t.Errorf("messages: got %d want 4", len(msgs))
		}
		roles := make([]string, 0, len(msgs))
		for _, m := range msgs {
			mm, _ := m.(map[string]any)
			roles = append(roles, mm["role"].(string))
		}
		want := []string{"system", "user", "assistant", "tool"}
		for i := range want {
			if roles[i] != want[i] {
				t.Errorf("roles: got %v want %v", roles, want)
				break
			}
		}

		last, _ := msgs[3].(map[string]any)
		if last["tool_call_id"] != "call_1" {
			t.Errorf("tool_call_id: got %v want call_1", last["tool_call_id"])
		}

		if req["seed"] == nil {
			t.Errorf("seed not forwarded")
		}

		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIResponse("done", nil, "stop"))
	}))
	t.Cleanup(srv.Close)

	seed := 42
	a := NewOpenAIAdapter("k", srv.URL+"/v1")
	messages := []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_1", Name: "search", Arguments: map[string]any{"q": "x"}}}},
		{Role: "tool_result", Content: "result", ToolCallID: "call_1", ToolName: "search"},
	}

	got, err := a.SendTurn(context.Background(), messages, nil, &Config{Model: "gpt-4o-mini", Seed: &seed})
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if got.Content != "done" || got.FinishReason != FinishStop {
		t.Fatalf("result: got %+v", got)
	}
}

func TestOpenAISendTurn_ForcedToolChoice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		choice, _ := req["tool_choice"].(map[string]any)
		if choice == nil {
			t.Errorf("tool_choice missing")
		} else {
			fn, _ := choice["function"].(map[string]any)
			if fn["name"] != "score_criteria" {
				t.Errorf("tool_choice: got %v", choice)
			}
		}

		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIResponse("ok", nil, "stop"))
	}))
	t.Cleanup(srv.Close)

	a := NewOpenAIAdapter("k", srv.URL+"/v1")
	tools := []ToolDefinition{{Name: "score_criteria", InputSchema: map[string]any{"type": "object"}}}
	_, err := a.SendTurn(context.Background(), []Message{{Role: "user", Content: "judge"}}, tools, &Config{
		Model:      "gpt-4o-mini",
		ToolChoice: "score_criteria",
	})
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
}

func TestOpenAISendTurn_TransientClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server error", http.StatusInternalServerError, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("content-type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			}))
			t.Cleanup(srv.Close)

			a := NewOpenAIAdapter("k", srv.URL+"/v1")
			_, err := a.SendTurn(context.Background(), []Message{{Role: "user", Content: "x"}}, nil, &Config{Model: "gpt-4o-mini"})
			if err == nil {
				t.Fatalf("SendTurn: expected error")
			}
			if IsTransient(err) != tc.transient {
				t.Fatalf("IsTransient: got %v want %v for %v", IsTransient(err), tc.transient, err)
			}
		})
	}
}

func TestOpenAISendTurn_MalformedToolArguments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIResponse("", []map[string]any{{
			"id":   "call_1",
			"type": "function",
			"function": map[string]any{
				"name":      "search",
				"arguments": `not json at all`,
			},
		}}, "tool_calls"))
	}))
	t.Cleanup(srv.Close)

	a := NewOpenAIAdapter("k", srv.URL+"/v1")
	got, err := a.SendTurn(context.Background(), []Message{{Role: "user", Content: "x"}}, nil, &Config{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if got.ToolCalls[0].Arguments["_raw"] != "not json at all" {
		t.Fatalf("Arguments: got %v, want raw fallback", got.ToolCalls[0].Arguments)
	}
}

func TestOpenAISendTurn_NilInputs(t *testing.T) {
	t.Parallel()

	a := NewOpenAIAdapter("k", "")
	if _, err := a.SendTurn(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("SendTurn: expected error for nil config")
	}

	var nilAdapter *OpenAIAdapter
	if _, err := nilAdapter.SendTurn(context.Background(), nil, nil, &Config{}); err == nil {
		t.Fatalf("SendTurn: expected error for nil adapter")
	}
}

func TestIsTransient_WrappedErrors(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	if IsTransient(base) {
		t.Fatalf("IsTransient: plain error should not be transient")
	}
	if !IsTransient(&TransientError{Err: base}) {
		t.Fatalf("IsTransient: wrapped transient not recognized")
	}
	if !IsTransient(&APIError{Provider: "openai", StatusCode: 503}) {
		t.Fatalf("IsTransient: 503 should be transient")
	}
	if !IsTransient(&APIError{Provider: "openai", StatusCode: 408}) {
		t.Fatalf("IsTransient: 408 should be transient")
	}
	if IsTransient(&APIError{Provider: "openai", StatusCode: 404}) {
		t.Fatalf("IsTransient: 404 should not be transient")
	}
}
