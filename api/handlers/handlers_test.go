package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lynx-remote/backend/internal/blob"
	"github.com/lynx-remote/backend/internal/db"
	"github.com/lynx-remote/backend/internal/presence"
	"github.com/lynx-remote/backend/internal/relay"
	"github.com/lynx-remote/backend/internal/repository"
	"github.com/lynx-remote/backend/internal/task"
)

type testEnv struct {
	server *httptest.Server
	repo   *repository.DeviceRepository
	relay  *relay.Service
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	repo := repository.NewDeviceRepository(testDB)
	if err := repo.CreateUser(context.Background(), "user-1", "Admin", "admin@example.com"); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	tasks, err := task.New(4)
	if err != nil {
		t.Fatalf("failed to create task queue: %v", err)
	}
	t.Cleanup(tasks.Release)

	shots, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create screenshot store: %v", err)
	}

	presenceSync := presence.NewSynchronizer(repo, tasks)
	relayService := relay.NewService(presenceSync, shots, tasks)
	t.Cleanup(relayService.Close)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")
	NewDeviceHandler(repo, relayService, shots).RegisterRoutes(api)
	NewWebSocketHandler(relayService.Handler()).RegisterRoutes(api)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testEnv{server: server, repo: repo, relay: relayService}
}

func (e *testEnv) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/ws?" + query
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(query), nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", query, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("received invalid JSON: %v", err)
	}
	return msg
}

func waitOnline(t *testing.T, e *testEnv, deviceID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.relay.IsOnline(deviceID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("device %s never came online", deviceID)
}

func TestHandshakeRejectsMissingIdentity(t *testing.T) {
	env := setupTestEnv(t)

	cases := []string{
		"type=device",          // missing id
		"id=d1",                // missing type
		"type=toaster&id=d1",   // invalid role
		"",                     // nothing at all
	}
	for _, query := range cases {
		_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(query), nil)
		if err == nil {
			t.Errorf("expected handshake %q to be rejected", query)
			continue
		}
		if resp == nil || resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for %q, got %+v", query, resp)
		}
	}
}

func TestRelayEndToEnd(t *testing.T) {
	env := setupTestEnv(t)

	device := env.dial(t, "type=device&id=d1&name=Office+PC&os=windows&version=1.4.2")
	waitOnline(t, env, "d1")

	client := env.dial(t, "type=client&id=c1")

	// Subscribe and receive the online acknowledgment
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","deviceId":"d1"}`)); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	ack := readMessage(t, client)
	if ack["type"] != "status" || ack["status"] != "online" || ack["deviceId"] != "d1" {
		t.Fatalf("unexpected subscribe ack: %v", ack)
	}

	// The device receives the greeting command
	greeting := readMessage(t, device)
	if greeting["type"] != "input" {
		t.Fatalf("expected greeting input frame, got %v", greeting)
	}

	// Device output reaches the subscriber verbatim
	if err := device.WriteMessage(websocket.TextMessage, []byte(`{"type":"output","output":"hello"}`)); err != nil {
		t.Fatalf("failed to send output: %v", err)
	}
	out := readMessage(t, client)
	if out["type"] != "output" || out["output"] != "hello" {
		t.Fatalf("unexpected output frame: %v", out)
	}

	// Client input reaches the device verbatim
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"input","data":"ls\n"}`)); err != nil {
		t.Fatalf("failed to send input: %v", err)
	}
	in := readMessage(t, device)
	if in["type"] != "input" || in["data"] != "ls\n" {
		t.Fatalf("unexpected input frame: %v", in)
	}

	// Device disconnect notifies the subscriber
	device.Close()
	notice := readMessage(t, client)
	if notice["type"] != "status" || notice["status"] != "offline" || notice["deviceId"] != "d1" {
		t.Fatalf("unexpected offline notice: %v", notice)
	}
}

func TestMalformedFrameKeepsConnectionUsable(t *testing.T) {
	env := setupTestEnv(t)

	device := env.dial(t, "type=device&id=d1")
	waitOnline(t, env, "d1")

	client := env.dial(t, "type=client&id=c1")
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","deviceId":"d1"}`)); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	readMessage(t, client) // status ack
	readMessage(t, device) // greeting

	if err := device.WriteMessage(websocket.TextMessage, []byte(`not-json`)); err != nil {
		t.Fatalf("failed to send garbage: %v", err)
	}

	// The connection survives and later frames still relay
	if err := device.WriteMessage(websocket.TextMessage, []byte(`{"type":"output","output":"alive"}`)); err != nil {
		t.Fatalf("failed to send output: %v", err)
	}
	out := readMessage(t, client)
	if out["output"] != "alive" {
		t.Fatalf("expected output after malformed frame, got %v", out)
	}
}

func TestDeviceRESTLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	// Pre-register
	body := bytes.NewBufferString(`{"name":"Rack 3"}`)
	resp, err := http.Post(env.server.URL+"/api/devices", "application/json", body)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created DeviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.Name != "Rack 3" || created.ID == "" || created.Online {
		t.Fatalf("unexpected created device: %+v", created)
	}

	// List contains it
	resp, err = http.Get(env.server.URL + "/api/devices")
	if err != nil {
		t.Fatalf("failed to list devices: %v", err)
	}
	defer resp.Body.Close()
	var listed []DeviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected device list: %+v", listed)
	}

	// Update metadata
	req, _ := http.NewRequest(http.MethodPatch, env.server.URL+"/api/devices/"+created.ID,
		bytes.NewBufferString(`{"name":"Rack 3b","group":"lab"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to update device: %v", err)
	}
	defer resp.Body.Close()
	var updated DeviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode update: %v", err)
	}
	if updated.Name != "Rack 3b" || updated.Group != "lab" {
		t.Fatalf("unexpected updated device: %+v", updated)
	}

	// Delete
	req, _ = http.NewRequest(http.MethodDelete, env.server.URL+"/api/devices/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to delete device: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/api/devices/" + created.ID)
	if err != nil {
		t.Fatalf("failed to get device: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestListEndpointReflectsLivePresence(t *testing.T) {
	env := setupTestEnv(t)

	env.dial(t, "type=device&id=d1&name=Live+One")
	waitOnline(t, env, "d1")

	// Wait for the presence upsert to land so the record exists
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := env.repo.GetByID(context.Background(), "d1"); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(env.server.URL + "/api/devices/d1")
	if err != nil {
		t.Fatalf("failed to get device: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got DeviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode device: %v", err)
	}
	if !got.Online {
		t.Error("expected the live online flag to be set")
	}
	if got.UserID != "user-1" {
		t.Errorf("expected fallback owner user-1, got %s", got.UserID)
	}
}
