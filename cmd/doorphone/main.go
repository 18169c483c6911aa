package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/runslikebutter/doorphone/internal/api"
	"github.com/runslikebutter/doorphone/internal/banner"
	"github.com/runslikebutter/doorphone/internal/config"
	"github.com/runslikebutter/doorphone/internal/dispatch"
	"github.com/runslikebutter/doorphone/internal/events"
	"github.com/runslikebutter/doorphone/internal/logger"
	"github.com/runslikebutter/doorphone/internal/media"
	"github.com/runslikebutter/doorphone/internal/processor"
)

func main() {
	cfg := config.Load()

	logger.Init(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	if cfg.DeviceUUID == "" {
		cfg.DeviceUUID = uuid.NewString()
	}

	banner.Print("DOORPHONE CLIENT", []banner.ConfigLine{
		{Label: "Backend", Value: cfg.BaseURL},
		{Label: "Device UUID", Value: cfg.DeviceUUID},
		{Label: "Webhook", Value: cfg.WebhookAddr},
		{Label: "SIP", Value: fmt.Sprintf("%s:%d", cfg.SIPBindAddr, cfg.SIPPort)},
		{Label: "STUN", Value: strings.Join(cfg.STUNServers, ", ")},
		{Label: "Log Level", Value: cfg.LogLevel},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.BaseURL, api.StaticTokenSource(cfg.AccessToken), cfg.HTTPTimeout)
	notifier := api.NewNotifier(client)

	audio := media.NewAudioDevice()
	channel := events.NewChannelPublisher(64)
	publisher := events.NewMultiPublisher(channel, events.NewLoggingPublisher(nil))

	twilio, err := processor.NewTwilio(processor.TwilioConfig{
		Notifier:  notifier,
		Publisher: publisher,
		Audio:     audio,
		Signal:    httpSignal(cfg.SignalURL, cfg.HTTPTimeout),
		Room:      media.RoomConfig{STUNServers: cfg.STUNServers},
	})
	if err != nil {
		logger.Error("Failed to create twilio processor", "error", err)
		os.Exit(1)
	}

	sip, err := processor.NewSIP(processor.SIPConfig{
		Notifier:  notifier,
		Publisher: publisher,
		Audio:     audio,
		Domain:    cfg.SIPDomain,
		Line: media.LineConfig{
			BindAddr: cfg.SIPBindAddr,
			Port:     cfg.SIPPort,
		},
	})
	if err != nil {
		logger.Error("Failed to create sip processor", "error", err)
		os.Exit(1)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Backend:    client,
		DeviceUUID: cfg.DeviceUUID,
		Processors: []processor.Processor{twilio, sip},
		Events:     channel,
	})
	if err != nil {
		logger.Error("Failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	dispatcher.Subscribe(func(e *events.Event) {
		logger.Info("Call event", "subject", e.Subject(), "type", string(e.Type))
	})
	go dispatcher.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.WebhookAddr,
		Handler: newWebhookRouter(dispatcher, client),
	}
	go func() {
		logger.Info("Webhook listening", "addr", cfg.WebhookAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Webhook server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Webhook shutdown", "error", err)
	}
	dispatcher.EndCall(shutdownCtx)
	channel.Close()
}

// pushPayload is the body the push relay POSTs when a panel calls or a
// call's status changes.
type pushPayload struct {
	CallGUID string `json:"call_guid" binding:"required"`
	Status   string `json:"status"`
	CallType string `json:"call_type"`
}

// newWebhookRouter builds the HTTP surface the push relay delivers to.
func newWebhookRouter(dispatcher *dispatch.Dispatcher, client *api.Client) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/v1/push", func(c *gin.Context) {
		var payload pushPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		callType := processor.CallTypeNotification
		if payload.CallType == "platform" {
			callType = processor.CallTypePlatform
		}

		ctx := c.Request.Context()
		var err error
		if active := dispatcher.ActiveCall(); active != nil && active.MatchesGUID(payload.CallGUID) {
			err = dispatcher.HandleStatusUpdate(ctx, payload.CallGUID, payload.Status)
		} else {
			err = dispatcher.ProcessCall(ctx, payload.CallGUID, callType)
		}
		if err != nil {
			logger.Warn("Push handling failed", "guid", payload.CallGUID, "error", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	router.POST("/v1/answer", func(c *gin.Context) {
		dispatcher.AnswerCall(c.Request.Context())
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	router.POST("/v1/hangup", func(c *gin.Context) {
		dispatcher.EndCall(c.Request.Context())
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	router.POST("/v1/door", func(c *gin.Context) {
		done := make(chan bool, 1)
		dispatcher.OpenDoor(c.Request.Context(), func(ok bool) { done <- ok })
		select {
		case ok := <-done:
			c.JSON(http.StatusOK, gin.H{"opened": ok})
		case <-time.After(10 * time.Second):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "door release timed out"})
		}
	})

	// Keyless entry: releases a door outside of any call.
	router.POST("/v1/unlock", func(c *gin.Context) {
		var payload struct {
			PanelID string `json:"panel_id" binding:"required"`
			UnitID  string `json:"unit_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := client.OpenDoor(c.Request.Context(), payload.PanelID, payload.UnitID, api.ReleaseMethodNumberpad); err != nil {
			logger.Warn("Door release failed", "panel", payload.PanelID, "error", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"opened": true})
	})

	return router
}

// httpSignal exchanges SDP offers for answers over a plain HTTP endpoint.
func httpSignal(url string, timeout time.Duration) media.SignalFunc {
	httpClient := &http.Client{Timeout: timeout}

	return func(ctx context.Context, credential, room string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
		var none webrtc.SessionDescription
		if url == "" {
			return none, fmt.Errorf("no signaling endpoint configured")
		}

		body, err := json.Marshal(map[string]string{
			"room":  room,
			"offer": offer.SDP,
		})
		if err != nil {
			return none, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return none, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+credential)

		resp, err := httpClient.Do(req)
		if err != nil {
			return none, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return none, err
		}
		if resp.StatusCode != http.StatusOK {
			return none, fmt.Errorf("signaling exchange failed: %s", resp.Status)
		}

		var out struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return none, fmt.Errorf("signaling response: %w", err)
		}
		return webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  out.Answer,
		}, nil
	}
}
