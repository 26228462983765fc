// Package server exposes meter snapshots over HTTP.
package server

import (
	"fmt"
	"html/template"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"meter-reader/internal/app"
	"meter-reader/internal/config"
)

// Resetter accepts operator resets.
type Resetter interface {
	Reset(app.ResetRequest) bool
}

type handler struct {
	store  *app.Store
	reset  Resetter
	tariff config.Tariff
}

var page = template.Must(template.New("index").Parse(`<html>
<head><title>Gas Meter</title></head>
<body>
<h1>Gas Meter</h1>
<img src="/image.mjpg" width="400">
<h3>Register</h3>
{{if .Snap.RegisterValid}}{{printf "%.1f" .Snap.Register}} ccf, read {{.Snap.RegisterTime.Format "2006-01-02 15:04:05"}}{{else}}not read{{end}}
<h3>Current Values</h3>
<table>
<tr><td>Total</td><td>{{printf "%.3f" .Report.CCF}} ccf</td></tr>
<tr><td>Flow</td><td>{{printf "%.1f" .Report.CFH}} cf/h ({{printf "%.1f" .Report.KW}} kW)</td></tr>
<tr><td>Cost</td><td>{{printf "%.2f" .Report.CostHr}} /h</td></tr>
<tr><td>Since start</td><td>{{printf "%.1f" .Report.SessionCF}} cf ({{printf "%.2f" .Report.SessionCost}})</td></tr>
<tr><td>Samples</td><td>{{.Snap.Committed}} committed, {{.Snap.Rejected}} rejected, {{.Snap.Faults}} faults</td></tr>
<tr><td>Updated</td><td>{{.Snap.Updated.Format "2006-01-02 15:04:05"}}</td></tr>
</table>
</body>
</html>
`))

// New builds the router. reset may be nil, in which case POST /reset is
// not served.
func New(store *app.Store, reset Resetter, tariff config.Tariff) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	h := &handler{store: store, reset: reset, tariff: tariff}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.SetHTMLTemplate(page)
	router.GET("/", h.index)
	router.GET("/json", h.json)
	router.GET("/ccf", h.ccf)
	router.GET("/image", h.image)
	router.GET("/image.mjpg", h.mjpeg)
	router.GET("/status", h.status)
	if reset != nil {
		router.POST("/reset", h.doReset)
	}
	return router
}

func (h *handler) index(c *gin.Context) {
	snap := h.store.Snapshot()
	c.HTML(http.StatusOK, "index", gin.H{
		"Snap":   snap,
		"Report": NewReport(snap, h.tariff),
	})
}

func (h *handler) json(c *gin.Context) {
	c.JSON(http.StatusOK, NewReport(h.store.Snapshot(), h.tariff))
}

func (h *handler) ccf(c *gin.Context) {
	snap := h.store.Snapshot()
	if !snap.RegisterValid {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "register not read yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ccf": snap.Register, "read_at": snap.RegisterTime})
}

func (h *handler) image(c *gin.Context) {
	snap := h.store.Snapshot()
	if len(snap.Image) == 0 {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", snap.Image)
}

const (
	mjpegBoundary = "jpgboundary"
	mjpegPoll     = 100 * time.Millisecond
)

// mjpeg streams every newly published frame as one part of a
// multipart/x-mixed-replace response until the client goes away.
func (h *handler) mjpeg(c *gin.Context) {
	mw := multipart.NewWriter(c.Writer)
	if err := mw.SetBoundary(mjpegBoundary); err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Status(http.StatusOK)

	ticker := time.NewTicker(mjpegPoll)
	defer ticker.Stop()

	var last time.Time
	for {
		snap := h.store.Snapshot()
		if len(snap.Image) > 0 && !snap.Updated.Equal(last) {
			last = snap.Updated
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(snap.Image))},
			})
			if err == nil {
				_, err = part.Write(snap.Image)
			}
			if err != nil {
				logrus.WithError(err).Debug("mjpeg client gone")
				return
			}
			c.Writer.Flush()
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *handler) status(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, h.store.Snapshot())
}

type resetBody struct {
	CCF *float64 `json:"ccf"`
}

func (h *handler) doReset(c *gin.Context) {
	var body resetBody
	if c.Request.ContentLength != 0 {
		if err := c.BindJSON(&body); err != nil {
			return
		}
	}
	if body.CCF != nil && *body.CCF < 0 {
		c.AbortWithError(http.StatusBadRequest, fmt.Errorf("ccf must not be negative, got %v", *body.CCF))
		return
	}
	if !h.reset.Reset(app.ResetRequest{CCF: body.CCF}) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a reset is already pending"})
		return
	}
	logrus.WithField("ccf", body.CCF).Info("reset requested")
	c.JSON(http.StatusAccepted, gin.H{"status": "reset queued"})
}

func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		latency := int(math.Ceil(float64(time.Since(start).Nanoseconds()) / 1e6))
		status := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"status":  status,
			"latency": latency,
			"method":  c.Request.Method,
			"path":    path,
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}
		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, status, latency)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}
