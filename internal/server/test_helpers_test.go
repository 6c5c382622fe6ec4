package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/tonusapp/tonus/backend/internal/attributes"
	"github.com/tonusapp/tonus/backend/internal/auth"
	"github.com/tonusapp/tonus/backend/internal/users"
	"github.com/tonusapp/tonus/backend/internal/workouts"
	"gorm.io/gorm"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.Account{}, &attributes.AttributeRecord{}, &workouts.WorkoutRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "tonus-auth",
		Audience:      "tonus-api",
		TokenTTL:      30 * time.Minute,
	})

	metricsStore, err := attributes.NewStore(attributes.StoreConfig{
		Database: db,
		Resource: attributes.ResourceMetrics,
	})
	if err != nil {
		t.Fatalf("failed to construct metrics store: %v", err)
	}
	musclesStore, err := attributes.NewStore(attributes.StoreConfig{
		Database: db,
		Resource: attributes.ResourceMuscles,
	})
	if err != nil {
		t.Fatalf("failed to construct muscles store: %v", err)
	}

	composer, err := workouts.NewComposer(workouts.ComposerConfig{
		Database:    db,
		MuscleStore: musclesStore,
		IDProvider:  workouts.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct composer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Users:        userService,
		TokenManager: tokenManager,
		MetricsStore: metricsStore,
		MusclesStore: musclesStore,
		Workouts:     composer,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler
}

func performJSON(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func registerAndLogin(t *testing.T, handler http.Handler, email string) string {
	t.Helper()

	recorder := performJSON(t, handler, http.MethodPost, "/api/register", "", map[string]string{
		"email":                 email,
		"password":              "correct-horse",
		"password_confirmation": "correct-horse",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register failed with %d: %s", recorder.Code, recorder.Body.String())
	}

	decoded := decodeResponse(t, recorder)
	data, ok := decoded["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing data in register response: %v", decoded)
	}
	token, ok := data["token"].(string)
	if !ok || token == "" {
		t.Fatalf("missing token in register response: %v", data)
	}
	return token
}
