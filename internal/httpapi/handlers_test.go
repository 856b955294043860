package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callgrid/internal/auth"
	"callgrid/internal/call"
	"callgrid/internal/config"
	"callgrid/internal/presence"
	"callgrid/internal/room"
	"callgrid/internal/session"
	"callgrid/internal/signaling"
	"callgrid/internal/user"

	"github.com/gin-gonic/gin"
)

type apiFixture struct {
	router *gin.Engine
	dir    *presence.Memory
	users  *user.MemoryRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := user.NewMemoryRepo()
	users.Add(user.Summary{ID: "alice", Username: "alice"})
	users.Add(user.Summary{ID: "bob", Username: "bob"})
	dir := presence.NewMemory()
	dir.SetOnline("alice", true)
	dir.SetOnline("bob", true)

	callStore := session.NewStore[call.Session]()
	roomStore := session.NewStore[room.Session]()
	engine := call.NewEngine(callStore, call.NewMemoryHistoryRepo(), users, dir, log)
	router := signaling.NewRouter(callStore, roomStore, dir, log, 1024)
	rooms := room.NewCoordinator(roomStore, room.NewMemoryRepo(), dir, log)

	manager, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	r := gin.New()
	// Test stand-in for the JWT middleware: identity from a header.
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set("user_id", id)
		}
	})

	v1 := r.Group("/v1")
	NewCallHandler(engine, router).RegisterRoutes(v1)
	NewRoomHandler(rooms, router).RegisterRoutes(v1)
	NewUserHandler(users, dir).RegisterRoutes(v1)
	NewAuthHandler(manager, users).RegisterRoutes(v1)

	return &apiFixture{router: r, dir: dir, users: users}
}

func (f *apiFixture) do(t *testing.T, asUser, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if asUser != "" {
		req.Header.Set("X-Test-User", asUser)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	w, created := f.do(t, "alice", http.MethodPost, "/v1/calls",
		`{"receiver_id":"bob","media":"video"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate status = %d, body %s", w.Code, w.Body)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("no session id in %v", created)
	}

	w, answered := f.do(t, "bob", http.MethodPost, "/v1/calls/"+id+"/answer", `{"accept":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("answer status = %d, body %s", w.Code, w.Body)
	}
	if answered["state"] != "answered" {
		t.Fatalf("state = %v, want answered", answered["state"])
	}

	w, ended := f.do(t, "alice", http.MethodPost, "/v1/calls/"+id+"/end", "")
	if w.Code != http.StatusOK {
		t.Fatalf("end status = %d, body %s", w.Code, w.Body)
	}
	if ended["state"] != "ended" {
		t.Fatalf("state = %v, want ended", ended["state"])
	}

	w, hist := f.do(t, "alice", http.MethodGet, "/v1/calls/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	calls, _ := hist["calls"].([]any)
	if len(calls) != 1 {
		t.Fatalf("history rows = %d, want 1", len(calls))
	}
	row, _ := calls[0].(map[string]any)
	if row["final_state"] != "ended" {
		t.Fatalf("final_state = %v, want ended", row["final_state"])
	}
}

func TestInitiateErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing receiver", `{"media":"video"}`, http.StatusBadRequest, "invalid_argument"},
		{"unknown receiver", `{"receiver_id":"ghost","media":"video"}`, http.StatusNotFound, "not_found"},
		{"bad media", `{"receiver_id":"bob","media":"hologram"}`, http.StatusBadRequest, "invalid_argument"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := f.do(t, "alice", http.MethodPost, "/v1/calls", tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body)
			}
			if body["code"] != tc.code {
				t.Fatalf("code = %v, want %s", body["code"], tc.code)
			}
		})
	}
}

func TestInitiateOfflineReceiverConflicts(t *testing.T) {
	f := newAPIFixture(t)
	f.dir.SetOnline("bob", false)

	w, body := f.do(t, "alice", http.MethodPost, "/v1/calls",
		`{"receiver_id":"bob","media":"voice"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", w.Code, w.Body)
	}
	if body["code"] != "receiver_unavailable" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestAnswerByStrangerForbidden(t *testing.T) {
	f := newAPIFixture(t)
	f.users.Add(user.Summary{ID: "carol", Username: "carol"})

	_, created := f.do(t, "alice", http.MethodPost, "/v1/calls",
		`{"receiver_id":"bob","media":"video"}`)
	id, _ := created["id"].(string)

	w, body := f.do(t, "carol", http.MethodPost, "/v1/calls/"+id+"/answer", `{"accept":true}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body %s)", w.Code, w.Body)
	}
	if body["code"] != "unauthorized" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.users.Add(user.Summary{ID: "carol", Username: "carol"})

	w, created := f.do(t, "alice", http.MethodPost, "/v1/rooms",
		`{"name":"standup","max_participants":2}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body)
	}
	code, _ := created["code"].(string)
	roomID, _ := created["id"].(string)
	if len(code) != 6 {
		t.Fatalf("room code = %q, want 6 digits", code)
	}

	if w, _ = f.do(t, "bob", http.MethodPost, "/v1/rooms/join", fmt.Sprintf(`{"code":%q}`, code)); w.Code != http.StatusOK {
		t.Fatalf("join status = %d, body %s", w.Code, w.Body)
	}

	w, body := f.do(t, "carol", http.MethodPost, "/v1/rooms/join", fmt.Sprintf(`{"code":%q}`, code))
	if w.Code != http.StatusConflict || body["code"] != "room_full" {
		t.Fatalf("full room: status = %d, code = %v", w.Code, body["code"])
	}

	if w, _ = f.do(t, "bob", http.MethodPost, "/v1/rooms/"+roomID+"/leave", ""); w.Code != http.StatusNoContent {
		t.Fatalf("leave status = %d", w.Code)
	}

	w, got := f.do(t, "alice", http.MethodGet, "/v1/rooms/"+roomID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	members, _ := got["members"].([]any)
	if len(members) != 2 {
		t.Fatalf("membership rows = %d, want 2 (append-only)", len(members))
	}
}

func TestSignalPayloadTooLarge(t *testing.T) {
	f := newAPIFixture(t)

	_, created := f.do(t, "alice", http.MethodPost, "/v1/calls",
		`{"receiver_id":"bob","media":"video"}`)
	id, _ := created["id"].(string)

	big := strings.Repeat("x", 2048)
	w, body := f.do(t, "alice", http.MethodPost, "/v1/calls/"+id+"/signal",
		fmt.Sprintf(`{"kind":"offer","payload":%q}`, big))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 (body %s)", w.Code, w.Body)
	}
	if body["code"] != "payload_too_large" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestIssueTokenForKnownUserOnly(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, "", http.MethodPost, "/v1/auth/token", `{"user_id":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if tok, _ := body["access_token"].(string); tok == "" {
		t.Fatalf("no access_token in %v", body)
	}

	if w, _ := f.do(t, "", http.MethodPost, "/v1/auth/token", `{"user_id":"ghost"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, want 404", w.Code)
	}
}
