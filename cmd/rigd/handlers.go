package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/rigd/pkg/logging"
	"github.com/dougsko/rigd/pkg/protocol"
)

// setupWebServer initializes the web server and routes
func (d *Daemon) setupWebServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/api/auth/token", d.handleIssueToken)

	api := router.Group("/api", d.requireAuth)
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/info", d.handleGetInfo)
		api.POST("/command", d.handleCommand)
		api.GET("/events", d.handleGetEvents)
	}

	router.GET("/ws", d.handleWebSocket)

	addr := fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port)
	d.webServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return nil
}

// requireAuth rejects requests without a valid bearer token when auth
// is enabled.
func (d *Daemon) requireAuth(c *gin.Context) {
	if err := d.authn.Verify(c.GetHeader("Authorization")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

// handleIssueToken exchanges the shared secret for a signed token.
func (d *Daemon) handleIssueToken(c *gin.Context) {
	var req struct {
		Secret  string `json:"secret"`
		Subject string `json:"subject"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if !d.authn.Enabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "auth is disabled"})
		return
	}
	if err := d.authn.Verify(req.Secret); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad secret"})
		return
	}
	subject := req.Subject
	if subject == "" {
		subject = c.ClientIP()
	}
	token, err := d.authn.Issue(subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleGetStatus returns the latest snapshot without touching the rig.
func (d *Daemon) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, d.handle.Snapshot())
}

// handleGetInfo returns the static backend description.
func (d *Daemon) handleGetInfo(c *gin.Context) {
	c.JSON(http.StatusOK, d.handle.Info())
}

// handleCommand accepts a wire-protocol envelope over HTTP and runs it
// through the same dispatch as the TCP listener.
func (d *Daemon) handleCommand(c *gin.Context) {
	var env protocol.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, protocol.Err(fmt.Errorf("malformed request: %w", err)))
		return
	}

	cmd, err := env.ToCommand()
	if err != nil {
		c.JSON(http.StatusBadRequest, protocol.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, commandTimeout)
	defer cancel()
	snap, err := d.handle.Submit(ctx, cmd)
	if err != nil {
		c.JSON(http.StatusOK, protocol.Err(err))
		return
	}
	c.JSON(http.StatusOK, protocol.OK(snap))
}

// handleGetEvents returns recent persisted events.
func (d *Daemon) handleGetEvents(c *gin.Context) {
	if d.eventLog == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event log is disabled"})
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		fmt.Sscanf(s, "%d", &limit)
	}
	events, err := d.eventLog.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket streams snapshots and events to a browser client.
// Auth rides in the query string because browsers cannot set headers on
// websocket dials.
func (d *Daemon) handleWebSocket(c *gin.Context) {
	if err := d.authn.Verify(c.Query("token")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("web", "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	watchID, snaps := d.handle.Watch()
	defer d.handle.Unwatch(watchID)
	subID, events := d.handle.Subscribe()
	defer d.handle.Unsubscribe(subID)

	// Reader goroutine: we ignore client messages but need the read
	// loop to notice a closed peer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-done:
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "snapshot", "snapshot": snap}); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "event", "event": ev}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
