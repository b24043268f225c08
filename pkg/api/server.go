// Package api provides the REST API of the skipper program registry
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/skipper/pkg/engine"
	"github.com/james-see/skipper/pkg/host"
	"github.com/james-see/skipper/pkg/program"
	"github.com/james-see/skipper/pkg/registry"
)

// @title Skipper Registry API
// @version 1.0
// @description Stages programs for skipper instances by track name
// @host localhost:61170
// @BasePath /api

// Server serves the registry routes over a Store
type Server struct {
	store  *Store
	logger *logrus.Logger
}

// NewServer creates a server over store
func NewServer(store *Store, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{store: store, logger: logger}
}

// Router builds the gin engine with every route
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	api := r.Group("/api")
	{
		api.GET("", listCommands)
		api.GET("/health", healthCheck)
		api.POST("/register", s.handleRegister)
		api.POST("/stage", s.handleStage)
		api.POST("/import", s.handleImport)
		api.GET("/programs", s.listPrograms)
		api.GET("/programs/:track", s.getProgram)
		api.GET("/programs/:track/midi", s.renderProgram)
		api.GET("/plugins", s.listPlugins)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer starts the registry server on the specified port
func StartServer(port int, stagingDir string, logger *logrus.Logger) error {
	s := NewServer(NewStore(stagingDir, logger), logger)
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "skipper",
	})
}

// listCommands godoc
// @Summary List commands
// @Description Returns the available registry commands
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router / [get]
func listCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"commands":   []string{"register", "stage", "import", "programs", "plugins"},
		"barLengths": program.ValidBarLengths(),
		"builtins":   program.BuiltinNames(),
	})
}

// handleRegister godoc
// @Summary Register an instance
// @Description Records an instance on a track and returns the program staged for it
// @Tags registry
// @Accept json
// @Produce json
// @Param request body registry.RegisterRequest true "Instance and track"
// @Success 200 {object} registry.RegisterResponse
// @Failure 400 {object} registry.ErrorResponse
// @Router /register [post]
func (s *Server) handleRegister(c *gin.Context) {
	var req registry.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.UUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Plugin UUID required"})
		return
	}
	if req.Track == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Track name required"})
		return
	}

	payload, _ := s.store.Register(req.UUID, req.Track)
	c.JSON(http.StatusOK, registry.RegisterResponse{
		Registered: true,
		UUID:       req.UUID,
		Track:      req.Track,
		Program:    payload,
	})
}

// handleStage godoc
// @Summary Stage programs
// @Description Validates and stages one program per track
// @Tags registry
// @Accept json
// @Produce json
// @Param request body registry.StageRequest true "Programs to stage"
// @Success 200 {object} registry.StageResponse
// @Failure 400 {object} registry.ErrorResponse
// @Router /stage [post]
func (s *Server) handleStage(c *gin.Context) {
	var req registry.StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Stages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No stages provided"})
		return
	}
	if req.CommitAt == "" {
		req.CommitAt = "next_bar"
	}

	// validate every stage before staging any
	for _, st := range req.Stages {
		if st.Track == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "track name required for each stage"})
			return
		}
		if _, err := validate(st.Program); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("track %s: %v", st.Track, err)})
			return
		}
	}

	tracks := make([]string, 0, len(req.Stages))
	for _, st := range req.Stages {
		if _, err := s.store.Stage(st.Track, st.Program); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		tracks = append(tracks, st.Track)
	}

	c.JSON(http.StatusOK, registry.StageResponse{
		Staged:   len(req.Stages),
		CommitAt: req.CommitAt,
		Tracks:   strings.Join(tracks, ", "),
	})
}

// handleImport godoc
// @Summary Import a MIDI file
// @Description Upload a Standard MIDI File and stage it as a program
// @Tags registry
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file to import"
// @Param track formData string false "Track name (default: file name)"
// @Success 200 {object} registry.ProgramInfo
// @Failure 400 {object} registry.ErrorResponse
// @Router /import [post]
func (s *Server) handleImport(c *gin.Context) {
	// Get uploaded file
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	// Read file content
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	name := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	track := c.DefaultPostForm("track", name)

	p, report, err := program.FromSMF(name, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := p.Payload()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.store.Stage(track, payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if report.Truncated > 0 {
		c.Header("X-Notes-Truncated", strconv.Itoa(report.Truncated))
	}

	c.JSON(http.StatusOK, registry.ProgramInfo{
		Track:      track,
		Name:       p.Name(),
		Notes:      p.NoteCount,
		LengthBars: p.LengthBars,
		Source:     sourceMemory,
	})
}

// listPrograms godoc
// @Summary List staged programs
// @Tags registry
// @Produce json
// @Success 200 {array} registry.ProgramInfo
// @Router /programs [get]
func (s *Server) listPrograms(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Programs())
}

// getProgram godoc
// @Summary Get a staged program
// @Description Returns the program payload staged for a track
// @Tags registry
// @Produce json
// @Param track path string true "Track name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} registry.ErrorResponse
// @Router /programs/{track} [get]
func (s *Server) getProgram(c *gin.Context) {
	payload, ok := s.store.Lookup(c.Param("track"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No program for track"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// maxRenderBeats is 64 loops of the longest valid program
const maxRenderBeats = 64 * 16 * program.BeatsPerBar

// renderProgram godoc
// @Summary Render a staged program to MIDI
// @Description Plays the program through the scheduler and returns the events as a MIDI file
// @Tags registry
// @Produce application/octet-stream
// @Param track path string true "Track name"
// @Param loops query int false "Loop passes (default: 1)"
// @Param tempo query number false "Tempo in BPM (default: 120)"
// @Success 200 {file} binary
// @Failure 400 {object} registry.ErrorResponse
// @Failure 404 {object} registry.ErrorResponse
// @Router /programs/{track}/midi [get]
func (s *Server) renderProgram(c *gin.Context) {
	track := c.Param("track")
	payload, ok := s.store.Lookup(track)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No program for track"})
		return
	}

	loops, err := strconv.Atoi(c.DefaultQuery("loops", "1"))
	if err != nil || loops < 1 || loops > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loops must be between 1 and 64"})
		return
	}
	tempo, err := strconv.ParseFloat(c.DefaultQuery("tempo", "120"), 64)
	if err != nil || tempo <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tempo must be a positive number"})
		return
	}

	e := engine.New(0, s.logger)
	if _, err := e.LoadProgram(payload); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var snap engine.Snapshot
	e.Snapshot(&snap)
	// staging files skip validation, so their length is unchecked
	if beats := snap.Program.LengthBeats * float64(loops); beats > maxRenderBeats {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("render of %g beats exceeds %d", beats, maxRenderBeats)})
		return
	}

	clock := host.NewClock(host.DefaultSampleRate, host.DefaultBlockSize, tempo)
	events := host.Render(e, clock, clock.BlocksFor(snap.Program.LengthBeats*float64(loops)))

	var buf bytes.Buffer
	if err := host.WriteSMF(&buf, snap.Program.Name(), events, tempo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", strings.TrimSuffix(fileName(track), ".json")+".mid"))
	c.Data(http.StatusOK, "audio/midi", buf.Bytes())
}

// listPlugins godoc
// @Summary List registered instances
// @Tags registry
// @Produce json
// @Success 200 {array} registry.PluginInfo
// @Router /plugins [get]
func (s *Server) listPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Plugins())
}
