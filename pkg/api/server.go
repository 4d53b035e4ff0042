// Package api provides the REST API server for qybridge
package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/james-see/qybridge/pkg/config"
	"github.com/james-see/qybridge/pkg/converter"
	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/logging"
	"github.com/james-see/qybridge/pkg/pattern"
	"github.com/james-see/qybridge/pkg/validate"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title qybridge API
// @version 1.0
// @description API for converting between Yamaha QY70 style dumps and QY700 pattern files
// @host localhost:8080
// @BasePath /api/v1

// Server serves conversions over HTTP.
type Server struct {
	cfg      config.Config
	conv     *converter.Converter
	template []byte
	logger   *log.Logger
}

// NewServer builds a server from cfg. template is the fallback used when a
// request brings none; nil selects the built-in template.
func NewServer(cfg config.Config, template []byte, logger *log.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if template == nil {
		template = devices.DefaultTemplate()
	}
	qy70 := &devices.QY70{DeviceNumber: cfg.DeviceNumber, SkipCorrupt: cfg.SkipCorrupt, Logger: logger}
	qy700 := &devices.QY700{RequireTemplate: cfg.RequireTemplate, Logger: logger}
	conv := converter.Default(logger)
	conv.SetDevice(qy70)
	conv.SetDevice(qy700)
	return &Server{
		cfg:      cfg,
		conv:     conv,
		template: template,
		logger:   logger,
	}
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.logger.Writer()), gin.Recovery())
	r.MaxMultipartMemory = int64(s.cfg.MaxUploadMB) << 20

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1", bodyLimit(int64(s.cfg.MaxUploadMB)<<20))
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", listFormats)
		v1.GET("/devices", listDevices)
		v1.POST("/convert", s.handleConvert)
		v1.POST("/validate", s.handleValidate)
		v1.POST("/info", s.handleInfo)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer starts the API server on the configured port
func StartServer(cfg config.Config, template []byte, logger *log.Logger) error {
	s := NewServer(cfg, template, logger)
	return s.Router().Run(fmt.Sprintf(":%d", cfg.Port))
}

// bodyLimit caps request bodies; uploads past it fail with 413.
func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
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
		"service": "qybridge",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns a list of supported file formats
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":     []string{"syx", "q7p", "mid"},
		"conversions": converter.GetSupportedConversions(),
	})
}

// listDevices godoc
// @Summary List supported devices
// @Description Returns the sequencers whose pattern data can be read and written
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]map[string]string
// @Router /api/v1/devices [get]
func listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"devices": []map[string]string{
			{"id": "qy70", "name": "Yamaha QY70", "format": "syx", "description": "style bulk dump"},
			{"id": "qy700", "name": "Yamaha QY700", "format": "q7p", "description": "pattern file"},
		},
	})
}

func readUpload(c *gin.Context, field string) ([]byte, *multipart.FileHeader, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, err
	}
	return data, header, nil
}

// uploadFailed answers a request whose upload could not be read.
func uploadFailed(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload larger than %d bytes", tooLarge.Limit)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
}

// conversionStatus maps a conversion failure to a status code. Failures
// caused by the uploaded data are the client's; anything else is ours.
func conversionStatus(err error) int {
	var (
		conv   *converter.ConversionError
		header *pattern.InvalidHeaderError
		field  *pattern.FieldRangeError
		tempo  *pattern.TempoOutOfRangeError
	)
	switch {
	case errors.As(err, &conv), errors.As(err, &header), errors.As(err, &field), errors.As(err, &tempo),
		errors.Is(err, pattern.ErrTemplateRequired), errors.Is(err, pattern.ErrLayout):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) findings(c *gin.Context, data []byte) []validate.Finding {
	findings := validate.Bytes(data)
	strict := s.cfg.Strict
	if v, err := strconv.ParseBool(c.DefaultQuery("strict", "")); err == nil {
		strict = v
	}
	if strict {
		findings = validate.Strict(findings)
	}
	return findings
}

// handleConvert godoc
// @Summary Convert a style dump or pattern file
// @Description Upload a .syx or .Q7P file and receive it in the target format
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param file formData file true "file to convert"
// @Param template formData file false "QY700 pattern file to write against"
// @Param target query string true "syx, q7p or mid"
// @Param section query int false "section exported to MIDI (default 0)"
// @Param strict query bool false "treat warnings as errors"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/convert [post]
func (s *Server) handleConvert(c *gin.Context) {
	data, header, err := readUpload(c, "file")
	if err != nil {
		uploadFailed(c, err)
		return
	}

	targetName := c.Query("target")
	midiOut := strings.EqualFold(targetName, "mid") || strings.EqualFold(targetName, "midi")
	var target pattern.Format
	if !midiOut {
		if target, err = pattern.ParseFormat(targetName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if findings := s.findings(c, data); validate.HasErrors(findings) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "input failed validation", "findings": findings})
		return
	}

	template := s.template
	if tpl, _, err := readUpload(c, "template"); err == nil {
		template = tpl
	} else if !errors.Is(err, http.ErrMissingFile) {
		uploadFailed(c, err)
		return
	}

	var (
		result      []byte
		outputExt   string
		contentType = "application/octet-stream"
	)
	if midiOut {
		p, err := s.conv.Read(data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		section, _ := strconv.Atoi(c.DefaultQuery("section", "0"))
		result, err = converter.NewMIDIConverter().GenerateMIDI(p, section)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outputExt, contentType = ".mid", "audio/midi"
	} else {
		res, err := s.conv.ConvertBytes(data, target, template)
		if err != nil {
			s.logger.Printf("api: convert %s: %v", header.Filename, err)
			c.JSON(conversionStatus(err), gin.H{"error": err.Error()})
			return
		}
		result, outputExt = res.Data, target.Extension()
		if res.Fidelity != "" {
			c.Header("X-Fidelity", res.Fidelity)
		}
	}

	// Generate output filename
	outputName := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	if outputName == "" {
		outputName = "converted"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s%s", outputName, outputExt))
	c.Data(http.StatusOK, contentType, result)
}

// handleValidate godoc
// @Summary Validate a style dump or pattern file
// @Description Upload a file and receive the list of findings
// @Tags validate
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "file to validate"
// @Param strict query bool false "treat warnings as errors"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/validate [post]
func (s *Server) handleValidate(c *gin.Context) {
	data, _, err := readUpload(c, "file")
	if err != nil {
		uploadFailed(c, err)
		return
	}
	findings := s.findings(c, data)
	c.JSON(http.StatusOK, gin.H{
		"valid":    !validate.HasErrors(findings),
		"errors":   validate.Count(findings, validate.ERROR),
		"warnings": validate.Count(findings, validate.WARN),
		"findings": findings,
	})
}

// handleInfo godoc
// @Summary Describe a style dump or pattern file
// @Description Upload a file and receive its decoded sections and tracks
// @Tags info
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "file to describe"
// @Success 200 {object} pattern.Summary
// @Failure 400 {object} map[string]string
// @Router /api/v1/info [post]
func (s *Server) handleInfo(c *gin.Context) {
	data, _, err := readUpload(c, "file")
	if err != nil {
		uploadFailed(c, err)
		return
	}
	p, err := s.conv.Read(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pattern.Summarize(p))
}
