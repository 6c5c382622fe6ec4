package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tonusapp/tonus/backend/internal/attributes"
	"github.com/tonusapp/tonus/backend/internal/observability"
	"github.com/tonusapp/tonus/backend/internal/users"
	"github.com/tonusapp/tonus/backend/internal/workouts"
	"go.uber.org/zap"
)

const userIDContextKey = "tonus_user_id"

var (
	errMissingUserService   = errors.New("user service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingMetricsStore  = errors.New("metrics store dependency required")
	errMissingMusclesStore  = errors.New("muscles store dependency required")
	errMissingComposer      = errors.New("workout composer dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues, validates and refreshes bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
	RefreshToken(ctx context.Context, token string) (string, int64, error)
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	Users        *users.Service
	TokenManager TokenManager
	MetricsStore *attributes.Store
	MusclesStore *attributes.Store
	Workouts     *workouts.Composer
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.MetricsStore == nil {
		return nil, errMissingMetricsStore
	}
	if deps.MusclesStore == nil {
		return nil, errMissingMusclesStore
	}
	if deps.Workouts == nil {
		return nil, errMissingComposer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestMetrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:    deps.Users,
		tokens:   deps.TokenManager,
		metrics:  deps.MetricsStore,
		muscles:  deps.MusclesStore,
		workouts: deps.Workouts,
		logger:   logger,
	}

	router.GET("/metrics", observability.MetricsHandler())

	api := router.Group("/api")
	api.POST("/register", handler.handleRegister)
	api.POST("/login", handler.handleLogin)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/logout", handler.handleLogout)
	protected.GET("/me", handler.handleMe)
	protected.POST("/refresh", handler.handleRefresh)
	protected.POST("/metrics", handler.handleMetricsStore)
	protected.GET("/metrics", handler.handleMetricsIndex)
	protected.POST("/muscles", handler.handleMusclesStore)
	protected.GET("/muscles", handler.handleMusclesIndex)
	protected.POST("/workouts", handler.handleWorkoutStore)
	protected.GET("/workouts", handler.handleWorkoutIndex)

	return router, nil
}

type httpHandler struct {
	users    *users.Service
	tokens   TokenManager
	metrics  *attributes.Store
	muscles  *attributes.Store
	workouts *workouts.Composer
	logger   *zap.Logger
}

type apiResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func successResponse(message string, data interface{}) apiResponse {
	return apiResponse{Status: "success", Message: message, Data: data}
}

func errorResponse(message string) apiResponse {
	return apiResponse{Status: "error", Message: message}
}

func validationResponse(message string, fieldErrors map[string][]string) apiResponse {
	return apiResponse{Status: "error", Message: message, Errors: fieldErrors}
}

type registerPayload struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenData struct {
	User      users.Account `json:"user"`
	Token     string        `json:"token"`
	TokenType string        `json:"token_type"`
	ExpiresIn int64         `json:"expires_in"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	fieldErrors := map[string][]string{}
	if strings.TrimSpace(request.Email) == "" {
		fieldErrors["email"] = append(fieldErrors["email"], "email is required")
	}
	if request.Password == "" {
		fieldErrors["password"] = append(fieldErrors["password"], "password is required")
	}
	if request.PasswordConfirmation == "" {
		fieldErrors["password_confirmation"] = append(fieldErrors["password_confirmation"], "password confirmation is required")
	} else if request.Password != request.PasswordConfirmation {
		fieldErrors["password"] = append(fieldErrors["password"], "passwords do not match")
	}
	if len(fieldErrors) > 0 {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed", fieldErrors))
		return
	}

	account, err := h.users.Register(c.Request.Context(), request.Email, request.Password)
	switch {
	case errors.Is(err, users.ErrInvalidEmail):
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"email": {"enter a valid email address"}}))
		return
	case errors.Is(err, users.ErrWeakPassword):
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"password": {"password must be at least 8 characters"}}))
		return
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"email": {"email is already registered"}}))
		return
	case err != nil:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("registration failed"))
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), account.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to issue token"))
		return
	}

	c.JSON(http.StatusCreated, successResponse("user registered", tokenData{
		User:      account,
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: expiresIn,
	}))
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"email": {"email and password are required"}}))
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, errorResponse("invalid email or password"))
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("login failed"))
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), account.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to issue token"))
		return
	}

	c.JSON(http.StatusOK, successResponse("authenticated", tokenData{
		User:      account,
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: expiresIn,
	}))
}

// Tokens are stateless: logout acknowledges and relies on client disposal plus TTL.
func (h *httpHandler) handleLogout(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse("logged out", nil))
}

func (h *httpHandler) handleMe(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	account, err := h.users.GetByUserID(c.Request.Context(), userID)
	if errors.Is(err, users.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, errorResponse("user not found"))
		return
	}
	if err != nil {
		h.logger.Error("account lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to load user"))
		return
	}
	c.JSON(http.StatusOK, successResponse("", gin.H{"user": account}))
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	token := bearerToken(c)
	refreshed, expiresIn, err := h.tokens.RefreshToken(c.Request.Context(), token)
	if err != nil {
		h.logger.Warn("token refresh failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, errorResponse("unable to refresh token"))
		return
	}
	c.JSON(http.StatusOK, successResponse("token refreshed", gin.H{
		"token":      refreshed,
		"token_type": "bearer",
		"expires_in": expiresIn,
	}))
}

type savedData struct {
	SavedCount int                          `json:"saved_count"`
	Records    []attributes.AttributeRecord `json:"records"`
}

func (h *httpHandler) handleMetricsStore(c *gin.Context) {
	ownerID, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	var payload attributes.Snapshot
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"body": {"expected a mapping of categories to named values"}}))
		return
	}
	if len(payload) == 0 {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"body": {"at least one category is required"}}))
		return
	}

	records := attributes.Decompose(ownerID, payload)
	h.replaceAndRespond(c, h.metrics, string(attributes.ResourceMetrics), ownerID, records, "metrics saved")
}

func (h *httpHandler) handleMetricsIndex(c *gin.Context) {
	h.listGrouped(c, h.metrics)
}

func (h *httpHandler) handleMusclesStore(c *gin.Context) {
	ownerID, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	var payload map[string][]attributes.Selection
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"body": {"expected a mapping of categories to muscle selections"}}))
		return
	}

	fieldErrors := map[string][]string{}
	for category, selections := range payload {
		for index, selection := range selections {
			if strings.TrimSpace(selection.ID) == "" {
				key := fmt.Sprintf("%s.%d.id", category, index)
				fieldErrors[key] = append(fieldErrors[key], "muscle id is required")
			}
			if strings.TrimSpace(selection.Name) == "" {
				key := fmt.Sprintf("%s.%d.name", category, index)
				fieldErrors[key] = append(fieldErrors[key], "muscle name is required")
			}
		}
	}
	if len(fieldErrors) > 0 {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed", fieldErrors))
		return
	}

	records := attributes.Decompose(ownerID, attributes.SnapshotFromSelections(payload))
	if len(records) == 0 {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"body": {"at least one muscle selection is required"}}))
		return
	}
	h.replaceAndRespond(c, h.muscles, string(attributes.ResourceMuscles), ownerID, records, "muscles saved")
}

func (h *httpHandler) handleMusclesIndex(c *gin.Context) {
	h.listGrouped(c, h.muscles)
}

func (h *httpHandler) replaceAndRespond(c *gin.Context, store *attributes.Store, resource string, ownerID attributes.OwnerID, records []attributes.AttributeRecord, message string) {
	count, err := store.ReplaceAll(c.Request.Context(), ownerID, records)
	if err != nil {
		var storeErr *attributes.StoreError
		if errors.As(err, &storeErr) &&
			(errors.Is(err, attributes.ErrInvalidCategory) ||
				errors.Is(err, attributes.ErrInvalidName) ||
				errors.Is(err, attributes.ErrInvalidValue)) {
			c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
				map[string][]string{"body": {storeErr.Error()}}))
			return
		}
		h.logger.Error("snapshot replace failed", zap.String("resource", resource), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to save records"))
		return
	}

	observability.RecordSnapshotReplaced(resource)
	c.JSON(http.StatusCreated, successResponse(message, savedData{
		SavedCount: count,
		Records:    records,
	}))
}

func (h *httpHandler) listGrouped(c *gin.Context, store *attributes.Store) {
	ownerID, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	grouped, err := store.ListGroupedByCategory(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("grouped read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to load records"))
		return
	}
	c.JSON(http.StatusOK, successResponse("", grouped))
}

type workoutPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type workoutData struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Muscules         []string `json:"muscules"`
	Active           bool     `json:"active"`
	CreatedAtSeconds int64    `json:"created_at_s"`
}

func workoutResponse(record workouts.WorkoutRecord) (workoutData, error) {
	names, err := record.MuscleNames()
	if err != nil {
		return workoutData{}, err
	}
	return workoutData{
		ID:               record.WorkoutID,
		Name:             record.Name,
		Description:      record.Description,
		Muscules:         names,
		Active:           record.Active,
		CreatedAtSeconds: record.CreatedAtSeconds,
	}, nil
}

func (h *httpHandler) handleWorkoutStore(c *gin.Context) {
	ownerID, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	var request workoutPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"body": {"expected a workout payload"}}))
		return
	}

	record, err := h.workouts.CreateWorkout(c.Request.Context(), ownerID, request.Name, request.Description)
	if errors.Is(err, workouts.ErrInvalidWorkoutName) {
		c.JSON(http.StatusUnprocessableEntity, validationResponse("validation failed",
			map[string][]string{"name": {"workout name is required"}}))
		return
	}
	if err != nil {
		h.logger.Error("workout creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to save workout"))
		return
	}

	data, err := workoutResponse(record)
	if err != nil {
		h.logger.Error("workout encoding failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to save workout"))
		return
	}
	c.JSON(http.StatusCreated, successResponse("workout created", data))
}

func (h *httpHandler) handleWorkoutIndex(c *gin.Context) {
	ownerID, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	records, err := h.workouts.ListWorkouts(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("workout listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to load workouts"))
		return
	}

	data := make([]workoutData, 0, len(records))
	for _, record := range records {
		item, err := workoutResponse(record)
		if err != nil {
			h.logger.Error("workout encoding failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorResponse("failed to load workouts"))
			return
		}
		data = append(data, item)
	}
	c.JSON(http.StatusOK, successResponse("", data))
}

func (h *httpHandler) resolveOwner(c *gin.Context) (attributes.OwnerID, bool) {
	userID := c.GetString(userIDContextKey)
	ownerID, err := attributes.NewOwnerID(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse("unauthorized"))
		return "", false
	}
	return ownerID, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errInvalidAuthorization.Error()))
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
