package server

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWorkoutCreateFreezesCurrentMuscles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "trainer@example.com")

	muscles := performJSON(t, handler, http.MethodPost, "/api/muscles", token, map[string][]map[string]string{
		"upper": {{"id": "biceps", "name": "Бицепсы"}},
	})
	if muscles.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", muscles.Code)
	}

	created := performJSON(t, handler, http.MethodPost, "/api/workouts", token, map[string]string{
		"name":        "Push day",
		"description": "Chest and arms",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	data := decodeResponse(t, created)["data"].(map[string]interface{})
	muscules, ok := data["muscules"].([]interface{})
	if !ok || len(muscules) != 1 || muscules[0] != "Бицепсы" {
		t.Fatalf("expected frozen muscle list, got %v", data["muscules"])
	}

	// Replacing muscles afterwards must not alter the stored workout.
	replaced := performJSON(t, handler, http.MethodPost, "/api/muscles", token, map[string][]map[string]string{
		"lower": {{"id": "quads", "name": "Квадрицепсы"}},
	})
	if replaced.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", replaced.Code)
	}

	listed := performJSON(t, handler, http.MethodGet, "/api/workouts", token, nil)
	if listed.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listed.Code)
	}
	items := decodeResponse(t, listed)["data"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected one workout, got %d", len(items))
	}
	frozen := items[0].(map[string]interface{})["muscules"].([]interface{})
	if len(frozen) != 1 || frozen[0] != "Бицепсы" {
		t.Fatalf("expected snapshot to survive replace, got %v", frozen)
	}
}

func TestWorkoutCreateRejectsMissingName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "trainer@example.com")

	recorder := performJSON(t, handler, http.MethodPost, "/api/workouts", token, map[string]string{
		"description": "no name",
	})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}
	decoded := decodeResponse(t, recorder)
	if _, ok := decoded["errors"].(map[string]interface{})["name"]; !ok {
		t.Fatalf("expected field error on name, got %v", decoded["errors"])
	}
}

func TestWorkoutListIsEmptyForNewUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "trainer@example.com")

	recorder := performJSON(t, handler, http.MethodGet, "/api/workouts", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	items, ok := decodeResponse(t, recorder)["data"].([]interface{})
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty workout list, got %v", items)
	}
}
