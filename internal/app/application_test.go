package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"ruangkelas/internal/auth"
	"ruangkelas/internal/config"
	"ruangkelas/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "ruangkelas.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Auth.SessionSecret = "test-secret-test-secret-test-secret"
	return cfg
}

// startApp builds and starts an application with one teacher, one student and one room
func startApp(t *testing.T) (*Application, int64) {
	t.Helper()
	application, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ctx := context.Background()
	db := application.Database()
	hash, err := auth.HashPassword("rahasia123")
	if err != nil {
		t.Fatal(err)
	}
	teacher := &types.User{Name: "Bu Sari", Role: types.RoleTeacher, PasswordHash: hash}
	student := &types.User{Name: "Budi", Role: types.RoleStudent, PasswordHash: hash}
	for _, u := range []*types.User{teacher, student} {
		if err := db.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	room := &types.Room{Name: "Kelas 4A", TeacherID: teacher.ID}
	if err := db.CreateRoom(ctx, room); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(shutdownCtx)
	})
	return application, room.ID
}

func login(t *testing.T, addr, name string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name, "password": "rahasia123"})
	resp, err := http.Post("http://"+addr+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Token
}

func readFrame(t *testing.T, conn *gorillaws.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame map[string]interface{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// Architectural Validation Tests

func TestApplication_ConstructorValidation(t *testing.T) {
	if _, err := NewApplication(nil); err == nil {
		t.Error("nil configuration should be rejected")
	}

	cfg := testConfig(t)
	cfg.Auth.SessionSecret = ""
	application, err := NewApplication(cfg)
	if err == nil || application != nil {
		t.Error("configuration without a session secret should be rejected")
	}
}

func TestApplication_OpenDatabaseMigrates(t *testing.T) {
	db, err := OpenDatabase(testConfig(t))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer db.Close()

	if err := db.ValidateSchema(); err != nil {
		t.Errorf("schema invalid after OpenDatabase: %v", err)
	}
}

func TestApplication_OpenDatabaseRejectsDriftedSchema(t *testing.T) {
	cfg := testConfig(t)
	db, err := OpenDatabase(cfg)
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	raw, err := sql.Open("sqlite3", cfg.Database.Path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	if _, err := raw.Exec("DROP INDEX idx_rooms_teacher"); err != nil {
		t.Fatalf("drop index failed: %v", err)
	}
	_ = raw.Close()

	if db, err := OpenDatabase(cfg); err == nil {
		_ = db.Close()
		t.Fatal("OpenDatabase accepted a database missing idx_rooms_teacher")
	} else if !strings.Contains(err.Error(), "idx_rooms_teacher") {
		t.Errorf("error = %v, want it to name the missing index", err)
	}
}

// Functional Validation Tests - end to end

func TestApplication_LoginAndRoomChat(t *testing.T) {
	application, roomID := startApp(t)
	addr := application.GetAddr()
	token := login(t, addr, "budi")

	url := fmt.Sprintf("ws://%s/ws?token=%s&kelas=%d", addr, token, roomID)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	for _, want := range []string{"connected", "online_users", "history"} {
		if frame := readFrame(t, conn); frame["type"] != want {
			t.Fatalf("expected %s frame, got %v", want, frame)
		}
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "chat", "content": "Selamat pagi"}); err != nil {
		t.Fatal(err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "chat" {
		t.Fatalf("expected chat frame, got %v", frame)
	}
	message := frame["message"].(map[string]interface{})
	if message["isi"] != "Selamat pagi" || message["user_nama"] != "Budi" {
		t.Errorf("chat message = %v", message)
	}

	// the HTTP history endpoint sees the same entry
	req, _ := http.NewRequest("GET", fmt.Sprintf("http://%s/api/rooms/%d/history", addr, roomID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var history struct {
		Messages []types.MessageView `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	if len(history.Messages) != 1 || history.Messages[0].Isi != "Selamat pagi" {
		t.Errorf("history = %+v", history.Messages)
	}
}

func TestApplication_RejectsForgedToken(t *testing.T) {
	application, roomID := startApp(t)

	url := fmt.Sprintf("ws://%s/ws?token=forged&kelas=%d", application.GetAddr(), roomID)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["message"] != "Authentication failed" {
		t.Errorf("expected authentication error frame, got %v", frame)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("socket should be closed after the error frame")
	}
}

func TestApplication_HealthEndpoint(t *testing.T) {
	application, _ := startApp(t)

	resp, err := http.Get("http://" + application.GetAddr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}
