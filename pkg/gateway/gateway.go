// Package gateway exposes generation over plain HTTP for non-chat clients.
// It drives the same model catalog and task client as the chat engine, so a
// card added for chats is immediately callable from the API.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wavespeedai/wavebot-go/pkg/config"
	"github.com/wavespeedai/wavebot-go/pkg/history"
	"github.com/wavespeedai/wavebot-go/pkg/models"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed/requests"
)

// Server is the HTTP facade.
type Server struct {
	Client  *wavespeed.Client
	Catalog *models.Loader
	History *history.Store // nil disables the ledger endpoints
	Config  *config.Config

	router *gin.Engine
}

// NewServer wires the routes. Call Start to listen, or Router to mount the
// handler elsewhere.
func NewServer(client *wavespeed.Client, catalog *models.Loader, store *history.Store, cfg *config.Config) *Server {
	s := &Server{
		Client:  client,
		Catalog: catalog,
		History: store,
		Config:  cfg,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the underlying gin handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start listens on the configured host and port. It blocks until the
// listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Gateway.Host, s.Config.Gateway.Port)
	zap.S().Infof("Gateway listening on %s", addr)
	return s.router.Run(addr)
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.POST("/generate", s.generate)
		api.GET("/tasks/:task_id", s.taskStatus)
		api.POST("/upload", s.upload)
		api.GET("/models", s.listModels)
		api.GET("/history", s.recentHistory)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type generateRequest struct {
	Model    string                 `json:"model"`
	Prompt   string                 `json:"prompt"`
	Image    string                 `json:"image"`
	Params   map[string]interface{} `json:"params"`
	Wait     bool                   `json:"wait"`
	ClientID string                 `json:"client_id"`
}

func (s *Server) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	card, ok := s.resolveCard(req.Model)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown model: %s", req.Model)})
		return
	}
	if !card.Available {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("model %s is not usable", card.Name)})
		return
	}

	values := make(map[string]interface{}, len(card.Defaults)+len(req.Params)+2)
	for k, v := range card.Defaults {
		values[k] = v
	}
	for k, v := range req.Params {
		values[k] = v
	}
	if req.Prompt != "" {
		values["prompt"] = req.Prompt
	}
	if req.Image != "" {
		values["image"] = req.Image
	}

	var wsReq wavespeed.Request
	if card.Dynamic {
		wsReq = requests.Dynamic(card.Model, values)
	} else if schema, ok := requests.Lookup(card.Model); ok {
		wsReq = schema.Bind(values)
	} else {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown model: %s", card.Model)})
		return
	}

	requestID := uuid.New().String()
	ctx := c.Request.Context()

	task, err := s.Client.Submit(ctx, wsReq)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "request_id": requestID})
		return
	}
	s.recordSubmission(c, req, card, task.ID)

	if !req.Wait {
		c.JSON(http.StatusAccepted, gin.H{
			"request_id": requestID,
			"task_id":    task.ID,
			"model":      card.Model,
			"status":     "submitted",
		})
		return
	}

	result, err := s.Client.Wait(ctx, task.ID, s.waitOptions())
	if err != nil {
		s.markFailed(task.ID, err.Error())
		c.JSON(statusFor(err), gin.H{
			"error":      err.Error(),
			"request_id": requestID,
			"task_id":    task.ID,
		})
		return
	}
	s.markCompleted(task.ID, result)

	c.JSON(http.StatusOK, gin.H{
		"request_id": requestID,
		"task_id":    task.ID,
		"model":      card.Model,
		"status":     result.Status,
		"outputs":    outputsJSON(wavespeed.ClassifyResult(result)),
	})
}

func (s *Server) taskStatus(c *gin.Context) {
	taskID := c.Param("task_id")

	result, err := s.Client.Poll(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"task_id": taskID, "status": result.Status}
	switch result.Status {
	case wavespeed.StatusCompleted:
		s.markCompleted(taskID, result)
		resp["outputs"] = outputsJSON(wavespeed.ClassifyResult(result))
	case wavespeed.StatusFailed:
		s.markFailed(taskID, result.Error)
		resp["error"] = result.Error
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) upload(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()

	url, err := s.Client.Upload(c.Request.Context(), file)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"download_url": url})
}

func (s *Server) listModels(c *gin.Context) {
	cards, err := s.Catalog.ListCards()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(cards))
	for _, card := range cards {
		out = append(out, gin.H{
			"name":        card.Name,
			"model":       card.Model,
			"kind":        card.Kind,
			"description": card.Description,
			"source":      card.Source,
			"dynamic":     card.Dynamic,
			"default":     card.Default,
			"available":   card.Available,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

func (s *Server) recentHistory(c *gin.Context) {
	if s.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	records, err := s.History.Recent(c.Query("channel"), c.Query("chat_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": records})
}

func (s *Server) resolveCard(name string) (models.Card, bool) {
	if name == "" {
		return s.Catalog.DefaultCard()
	}
	return s.Catalog.Lookup(name)
}

func (s *Server) waitOptions() *wavespeed.WaitOptions {
	d := s.Config.Generation.Defaults
	opts := &wavespeed.WaitOptions{}
	if d.PollInterval > 0 {
		opts.PollInterval = time.Duration(d.PollInterval) * time.Second
	}
	if d.MaxWaitTime > 0 {
		opts.Timeout = time.Duration(d.MaxWaitTime) * time.Second
	}
	return opts
}

func outputsJSON(out wavespeed.ClassifiedOutput) gin.H {
	return gin.H{
		"video_url": out.Video,
		"images":    out.Images,
		"audio_url": out.Audio,
		"text":      out.Text,
	}
}

// statusFor maps task client errors onto HTTP statuses: caller mistakes are
// 4xx, upstream failures are 5xx.
func statusFor(err error) int {
	var authErr *wavespeed.AuthError
	var validationErr *wavespeed.ValidationError
	var invalidTask *wavespeed.InvalidTaskIDError
	var timeoutErr *wavespeed.TaskTimeoutError

	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &validationErr), errors.As(err, &invalidTask):
		return http.StatusBadRequest
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) recordSubmission(c *gin.Context, req generateRequest, card models.Card, taskID string) {
	if s.History == nil {
		return
	}
	rec := &history.Record{
		ID:       taskID,
		Channel:  "api",
		ChatID:   req.ClientID,
		SenderID: c.ClientIP(),
		Model:    card.Model,
		Prompt:   req.Prompt,
		Status:   string(wavespeed.StatusProcessing),
	}
	if err := s.History.RecordSubmission(rec); err != nil {
		zap.S().Warnf("Failed to record task %s: %v", taskID, err)
	}
}

func (s *Server) markCompleted(taskID string, result *wavespeed.TaskResult) {
	if s.History == nil {
		return
	}
	if err := s.History.MarkCompleted(taskID, result.Outputs); err != nil {
		zap.S().Warnf("Failed to update task %s: %v", taskID, err)
	}
}

func (s *Server) markFailed(taskID, reason string) {
	if s.History == nil {
		return
	}
	if err := s.History.MarkFailed(taskID, reason); err != nil {
		zap.S().Warnf("Failed to update task %s: %v", taskID, err)
	}
}
