package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/tonusapp/tonus/backend/internal/attributes"
	"github.com/tonusapp/tonus/backend/internal/auth"
	"github.com/tonusapp/tonus/backend/internal/server"
	"github.com/tonusapp/tonus/backend/internal/users"
	"github.com/tonusapp/tonus/backend/internal/workouts"
	"github.com/tonusapp/tonus/backend/pkg/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenSigningSecret = "integration-secret"
	jsonContentType    = "application/json"
)

func newIntegrationServer(testContext *testing.T) *httptest.Server {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&users.Account{}, &attributes.AttributeRecord{}, &workouts.WorkoutRecord{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(tokenSigningSecret),
		Issuer:        "tonus-auth",
		Audience:      "tonus-api",
	})

	metricsStore, err := attributes.NewStore(attributes.StoreConfig{
		Database: db,
		Resource: attributes.ResourceMetrics,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build metrics store: %v", err)
	}

	musclesStore, err := attributes.NewStore(attributes.StoreConfig{
		Database: db,
		Resource: attributes.ResourceMuscles,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build muscles store: %v", err)
	}

	workoutComposer, err := workouts.NewComposer(workouts.ComposerConfig{
		Database:    db,
		MuscleStore: musclesStore,
		IDProvider:  workouts.NewUUIDProvider(),
		Logger:      zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build workout composer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:        usersService,
		TokenManager: tokenManager,
		MetricsStore: metricsStore,
		MusclesStore: musclesStore,
		Workouts:     workoutComposer,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	testContext.Cleanup(testServer.Close)
	return testServer
}

func registerAccount(testContext *testing.T, baseURL, email string) string {
	testContext.Helper()

	payload := map[string]string{
		"name":                  "Integration User",
		"email":                 email,
		"password":              "str0ng-pass",
		"password_confirmation": "str0ng-pass",
	}
	body, _ := json.Marshal(payload)

	response, err := http.Post(baseURL+"/api/register", jsonContentType, bytes.NewReader(body))
	if err != nil {
		testContext.Fatalf("register request failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected register status: %d", response.StatusCode)
	}

	var registered struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(response.Body).Decode(&registered); err != nil {
		testContext.Fatalf("failed to decode register response: %v", err)
	}
	if registered.Data.Token == "" {
		testContext.Fatalf("expected a bearer token in register response")
	}
	return registered.Data.Token
}

func TestSnapshotAndWorkoutFlow(testContext *testing.T) {
	testServer := newIntegrationServer(testContext)
	token := registerAccount(testContext, testServer.URL, "flow@example.com")

	apiClient, err := client.New(client.Config{
		BaseURL:     testServer.URL,
		Credentials: client.StaticToken(token),
		HTTPClient:  testServer.Client(),
	})
	if err != nil {
		testContext.Fatalf("failed to build api client: %v", err)
	}

	ctx := context.Background()

	metricsResult, err := apiClient.SubmitMetrics(ctx, map[string]map[string]string{
		"body": {"weight": "82", "height": "180"},
	})
	if err != nil {
		testContext.Fatalf("metrics submit failed: %v", err)
	}
	if metricsResult.SavedCount != 2 {
		testContext.Fatalf("expected 2 saved metrics, got %d", metricsResult.SavedCount)
	}

	if _, err := apiClient.SubmitMuscles(ctx, map[string][]client.Selection{
		"upper": {{ID: "1", Name: "chest"}, {ID: "2", Name: "triceps"}},
	}); err != nil {
		testContext.Fatalf("muscles submit failed: %v", err)
	}

	created, err := apiClient.CreateWorkout(ctx, "Push Day", "Chest focus")
	if err != nil {
		testContext.Fatalf("workout create failed: %v", err)
	}
	if len(created.Muscules) != 2 {
		testContext.Fatalf("expected 2 frozen muscles, got %#v", created.Muscules)
	}

	// A later replacement must not rewrite the frozen workout snapshot.
	if _, err := apiClient.SubmitMuscles(ctx, map[string][]client.Selection{
		"lower": {{ID: "3", Name: "quads"}},
	}); err != nil {
		testContext.Fatalf("second muscles submit failed: %v", err)
	}

	listed, err := apiClient.ListWorkouts(ctx)
	if err != nil {
		testContext.Fatalf("workout list failed: %v", err)
	}
	if len(listed) != 1 {
		testContext.Fatalf("expected one workout, got %d", len(listed))
	}
	if len(listed[0].Muscules) != 2 {
		testContext.Fatalf("expected frozen snapshot of 2 muscles, got %#v", listed[0].Muscules)
	}

	muscles, err := apiClient.FetchMuscles(ctx)
	if err != nil {
		testContext.Fatalf("muscles fetch failed: %v", err)
	}
	if _, stillThere := muscles["upper"]; stillThere {
		testContext.Fatalf("expected upper category to be replaced, got %#v", muscles)
	}
	if len(muscles["lower"]) != 1 {
		testContext.Fatalf("expected one lower muscle, got %#v", muscles["lower"])
	}

	metrics, err := apiClient.FetchMetrics(ctx)
	if err != nil {
		testContext.Fatalf("metrics fetch failed: %v", err)
	}
	if len(metrics["body"]) != 2 {
		testContext.Fatalf("expected metrics untouched by muscle replace, got %#v", metrics)
	}
}

func TestRejectedCredentialsAreClassified(testContext *testing.T) {
	testServer := newIntegrationServer(testContext)

	apiClient, err := client.New(client.Config{
		BaseURL:     testServer.URL,
		Credentials: client.StaticToken("not-a-valid-token"),
		HTTPClient:  testServer.Client(),
	})
	if err != nil {
		testContext.Fatalf("failed to build api client: %v", err)
	}

	_, err = apiClient.SubmitMetrics(context.Background(), map[string]map[string]string{"body": {"weight": "82"}})
	apiErr, ok := err.(*client.APIError)
	if !ok {
		testContext.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Kind != client.FailureUnauthenticated {
		testContext.Fatalf("expected unauthenticated failure, got %v", apiErr.Kind)
	}
}
