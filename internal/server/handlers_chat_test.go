package server

import (
	"net/http"
	"testing"
)

func TestChatCRUDLifecycle(t *testing.T) {
	env := newDefaultEnv(t)
	userID := seedUser(t, env, 1)
	token := signToken(t, userID, nil)

	rec := performRequest(t, env.router, http.MethodPost, "/api/v1/chats", token,
		map[string]any{"title": "  Trip planning ", "tags": []string{"travel", "Travel", " "}}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chat: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	created := decodeJSONMap(t, rec)
	chatID, _ := created["id"].(string)
	if chatID == "" {
		t.Fatalf("expected chat id, got %v", created)
	}
	if created["title"] != "Trip planning" {
		t.Fatalf("expected trimmed title, got %v", created["title"])
	}
	if tags := decodeStringList(t, created["tags"]); len(tags) != 1 || tags[0] != "travel" {
		t.Fatalf("expected deduplicated tags, got %v", tags)
	}

	rec = performRequest(t, env.router, http.MethodPatch, "/api/v1/chats/"+chatID, token,
		map[string]any{"title": "Renamed", "is_favorite": true}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch chat: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	patched := decodeJSONMap(t, rec)
	if patched["title"] != "Renamed" || patched["is_favorite"] != true {
		t.Fatalf("unexpected patched chat: %v", patched)
	}

	rec = performRequest(t, env.router, http.MethodGet, "/api/v1/chats/"+chatID, token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get chat: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)
	if msgs, _ := body["messages"].([]any); len(msgs) != 0 {
		t.Fatalf("expected no messages yet, got %v", msgs)
	}

	rec = performRequest(t, env.router, http.MethodDelete, "/api/v1/chats/"+chatID, token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete chat: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec = performRequest(t, env.router, http.MethodGet, "/api/v1/chats/"+chatID, token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected soft-deleted chat to be hidden, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Chat not found" {
		t.Fatalf("expected chat not found detail, got %q", detail)
	}
}

func TestCreateChatWithoutBodyUsesDefaultTitle(t *testing.T) {
	env := newDefaultEnv(t)
	token := signToken(t, seedUser(t, env, 1), nil)

	rec := performRequest(t, env.router, http.MethodPost, "/api/v1/chats", token, nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if title := decodeJSONMap(t, rec)["title"]; title != "New chat" {
		t.Fatalf("expected default title, got %v", title)
	}
}

func TestListChatsFavoritesFirstAndFilters(t *testing.T) {
	env := newDefaultEnv(t)
	userID := seedUser(t, env, 1)
	token := signToken(t, userID, nil)

	older := seedChat(t, env, userID, "older", "work")
	favorite := seedChat(t, env, userID, "favorite")
	newest := seedChat(t, env, userID, "newest", "work")
	otherUser := seedUser(t, env, 1)
	seedChat(t, env, otherUser, "not mine", "work")

	rec := performRequest(t, env.router, http.MethodPost, "/api/v1/chats/"+favorite+"/favorite", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle favorite: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec =performRequest(t, env.router, http.MethodGet, "/api/v1/chats", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list chats: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	ids := chatIDs(t, decodeJSONMap(t, rec))
	want := []string{favorite, newest, older}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}

	rec = performRequest(t, env.router, http.MethodGet, "/api/v1/chats?favorites=true", token, nil, nil)
	if ids := chatIDs(t, decodeJSONMap(t, rec)); len(ids) != 1 || ids[0] != favorite {
		t.Fatalf("expected only the favorite chat, got %v", ids)
	}

	rec = performRequest(t, env.router, http.MethodGet, "/api/v1/chats?tag=WORK&limit=1", token, nil, nil)
	if ids := chatIDs(t, decodeJSONMap(t, rec)); len(ids) != 1 || ids[0] != newest {
		t.Fatalf("expected newest work chat, got %v", ids)
	}

	rec = performRequest(t, env.router, http.MethodPost, "/api/v1/chats/"+favorite+"/favorite", token, nil, nil)
	if decodeJSONMap(t, rec)["is_favorite"] != false {
		t.Fatalf("expected second toggle to clear favorite")
	}
}

func TestChatsAreScopedToOwner(t *testing.T) {
	env := newDefaultEnv(t)
	owner := seedUser(t, env, 1)
	intruder := seedUser(t, env, 1)
	chatID := seedChat(t, env, owner, "private")
	token := signToken(t, intruder, nil)

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/chats/" + chatID, nil},
		{http.MethodPatch, "/api/v1/chats/" + chatID, map[string]any{"title": "mine now"}},
		{http.MethodDelete, "/api/v1/chats/" + chatID + "?permanent=true", nil},
		{http.MethodPost, "/api/v1/chats/" + chatID + "/favorite", nil},
	} {
		rec := performRequest(t, env.router, tc.method, tc.path, token, tc.body, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d body=%s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}
}

func TestPermanentDeleteRemovesChat(t *testing.T) {
	env := newDefaultEnv(t)
	userID := seedUser(t, env, 1)
	chatID := seedChat(t, env, userID, "gone")
	token := signToken(t, userID, nil)

	rec := performRequest(t, env.router, http.MethodDelete, "/api/v1/chats/"+chatID+"?permanent=true", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if body := decodeJSONMap(t, rec); body["permanent"] != true {
		t.Fatalf("expected permanent=true, got %v", body)
	}
	rec = performRequest(t, env.router, http.MethodDelete, "/api/v1/chats/"+chatID, token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after permanent delete, got %d", rec.Code)
	}
}

func TestUpdateChatRejectsBlankTitle(t *testing.T) {
	env := newDefaultEnv(t)
	userID := seedUser(t, env, 1)
	chatID := seedChat(t, env, userID, "keep")
	token := signToken(t, userID, nil)

	rec := performRequest(t, env.router, http.MethodPatch, "/api/v1/chats/"+chatID, token, map[string]any{"title": "  "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func chatIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	raw, ok := body["chats"].([]any)
	if !ok {
		t.Fatalf("expected chats list, got %T", body["chats"])
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		chat, _ := item.(map[string]any)
		id, _ := chat["id"].(string)
		ids = append(ids, id)
	}
	return ids
}
