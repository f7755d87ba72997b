package backendserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"callshield/internal/backend"
	"callshield/internal/calls"
	"callshield/internal/decoy"
	"callshield/internal/telephony"
	"callshield/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var errNoDecoy = errors.New("backendserver: decoy personas not enabled")

const (
	defaultHistoryLimit = 50
	recentCallsLimit    = 20

	// DefaultSpeechURL is where speech gathers post back. Twilio resolves a
	// relative URL against the voice webhook URL.
	DefaultSpeechURL = "/webhooks/twilio/speech"
	DefaultVoice     = "Polly.Joanna"
)

type Options struct {
	// APIKey, when set, is required as a bearer token on every route except
	// /health and the Twilio webhook.
	APIKey string
	Policy *Policy
	Store  *Store
	Logger *slog.Logger
	Now    func() time.Time

	// Decoy, when set, answers spam Twilio calls with a persona instead of
	// dialing the redirect number.
	Decoy *decoy.Engine
	// SpeechURL is the gather callback handed to Twilio. It defaults to
	// DefaultSpeechURL, which is also where the handler is mounted; a
	// public URL must route there. Voice defaults to DefaultVoice.
	SpeechURL string
	Voice     string
}

// Server is the reference routing backend the agent talks to.
type Server struct {
	apiKey    string
	policy    *Policy
	store     *Store
	log       *slog.Logger
	now       func() time.Time
	decoy     *decoy.Engine
	speechURL string
	voice     string
}

func New(opts Options) *Server {
	s := &Server{
		apiKey: opts.APIKey,
		policy: opts.Policy,
		store:  opts.Store,
		log:    logger.OrDefault(opts.Logger),
		now:    opts.Now,

		decoy:     opts.Decoy,
		speechURL: opts.SpeechURL,
		voice:     opts.Voice,
	}
	if s.speechURL == "" {
		s.speechURL = DefaultSpeechURL
	}
	if s.voice == "" {
		s.voice = DefaultVoice
	}
	if s.policy == nil {
		s.policy = NewPolicy(nil, nil, nil)
	}
	if s.store == nil {
		s.store = NewStore()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Routes mounts every backend endpoint on r.
func (s *Server) Routes(r gin.IRouter) {
	r.GET(backend.PathHealth, s.health)

	twilio := telephony.TwilioWebhookHandler{Router: s, Now: s.now}
	if s.decoy != nil {
		twilio.Conversation = s
	}
	r.POST("/webhooks/twilio/voice", twilio.HandleInboundCall)
	r.POST(DefaultSpeechURL, twilio.HandleSpeech)
	r.POST("/webhooks/twilio/status", twilio.HandleStatus)

	api := r.Group("")
	api.Use(s.requireAPIKey())
	{
		api.POST(backend.PathRouteCall, s.routeCall)
		api.POST(backend.PathCallStatus, s.callStatus)
		api.POST(backend.PathRegisterDevice, s.registerDevice)
		api.GET(backend.PathRoutingConfig, s.routingConfig)
		api.GET("/call-history", s.callHistory)
		api.GET("/devices", s.devices)
		api.POST("/block-number", s.blockNumber)
		api.POST("/unblock-number", s.unblockNumber)

		api.GET("/api/analytics/summary", s.summary)
		api.GET("/api/calls", s.recentCalls)
		api.GET("/api/calls/:id", s.callDetails)
	}
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.Next()
			return
		}
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(raw), []byte(s.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func (s *Server) timestamp() string { return s.now().UTC().Format(backend.TimestampLayout) }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, backend.HealthResponse{Status: "healthy", Timestamp: s.timestamp()})
}

func (s *Server) routeCall(c *gin.Context) {
	var req backend.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid json"})
		return
	}
	req.CallerID = strings.TrimSpace(req.CallerID)
	switch {
	case req.CallerID == "":
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "callerId required"})
		return
	case req.Action != backend.RequestRoute && req.Action != backend.RequestReject && req.Action != backend.RequestForward:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "action must be route, reject or forward"})
		return
	}

	resp := s.policy.Decide(req.CallerID)
	s.store.AddCall(CallRecord{
		ID:             uuid.NewString(),
		CallerID:       req.CallerID,
		DeviceID:       req.DeviceID,
		Source:         "agent",
		RequestAction:  string(req.Action),
		Decision:       resp.Action,
		RedirectNumber: resp.RedirectNumber,
		Timestamp:      req.Timestamp,
		ReceivedAt:     s.now().UTC(),
	})
	logger.FromGin(c).Info("call routed", "caller_id", req.CallerID, "device_id", req.DeviceID, "action", string(resp.Action))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) callStatus(c *gin.Context) {
	var req backend.CallStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid json"})
		return
	}
	status := calls.NotifyStatus(req.Status)
	if !status.Valid() {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "status must be answered, rejected or missed"})
		return
	}
	s.store.UpdateStatus(req.CallerID, status)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Status updated"})
}

func (s *Server) registerDevice(c *gin.Context) {
	var req backend.DeviceRegistration
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DeviceID) == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "deviceId required"})
		return
	}
	s.store.RegisterDevice(req.DeviceID, Device{
		PhoneNumber:  req.PhoneNumber,
		Platform:     req.Platform,
		RegisteredAt: req.Timestamp,
		LastSeen:     s.now().UTC(),
	})
	logger.FromGin(c).Info("device registered", "device_id", req.DeviceID, "platform", req.Platform)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Device registered successfully"})
}

func (s *Server) routingConfig(c *gin.Context) {
	targets := s.policy.Targets()
	numbers := make([]string, 0, len(targets))
	for _, t := range targets {
		numbers = append(numbers, t.Number)
	}
	c.JSON(http.StatusOK, gin.H{
		"blockedNumbers":  s.policy.Blocked(),
		"redirectNumber":  numbers[0],
		"redirectNumbers": numbers,
		"spamDetection":   true,
		"autoBlock":       true,
	})
}

func (s *Server) callHistory(c *gin.Context) {
	limit, ok := queryLimit(c, defaultHistoryLimit)
	if !ok {
		return
	}
	records, total := s.store.History(limit)
	c.JSON(http.StatusOK, gin.H{"calls": records, "total": total})
}

func (s *Server) devices(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Devices())
}

func (s *Server) blockNumber(c *gin.Context) {
	number := strings.TrimSpace(c.Query("number"))
	if number == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "number required"})
		return
	}
	logger.FromGin(c).Info("number blocked", "number", number)
	c.JSON(http.StatusOK, gin.H{"success": true, "blockedNumbers": s.policy.Block(number)})
}

func (s *Server) unblockNumber(c *gin.Context) {
	number := strings.TrimSpace(c.Query("number"))
	if number == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "number required"})
		return
	}
	logger.FromGin(c).Info("number unblocked", "number", number)
	c.JSON(http.StatusOK, gin.H{"success": true, "blockedNumbers": s.policy.Unblock(number)})
}

func (s *Server) summary(c *gin.Context) {
	now := s.now()
	sum := s.store.Summarize(now, len(s.policy.Blocked()))
	if s.decoy != nil {
		st := s.decoy.Stats(dayStart(now))
		sum.AvgDurationToday = st.AvgDurationSeconds
		sum.TotalTimeWasted = st.TotalSecondsWasted
		if st.MostEffectivePersona != "" {
			sum.MostEffectivePersona = st.MostEffectivePersona
		}
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) recentCalls(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Recent(recentCallsLimit))
}

func (s *Server) callDetails(c *gin.Context) {
	rec, ok := s.store.Call(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call not found"})
		return
	}
	c.JSON(http.StatusOK, CallDetails{Call: rec, Conversation: s.transcript(rec.ProviderCallID)})
}

// CallDetails is the GET /api/calls/:id payload. Conversation is empty for
// calls that never reached a persona.
type CallDetails struct {
	Call         CallRecord   `json:"call"`
	Conversation []decoy.Turn `json:"conversation"`
}

func (s *Server) transcript(providerCallID string) []decoy.Turn {
	if s.decoy == nil || providerCallID == "" {
		return []decoy.Turn{}
	}
	sess, ok := s.decoy.Session(providerCallID)
	if !ok || sess.Turns == nil {
		return []decoy.Turn{}
	}
	return sess.Turns
}

// RouteInbound applies the policy to a provider webhook call.
func (s *Server) RouteInbound(ctx context.Context, call telephony.InboundCall) (telephony.Decision, error) {
	resp := s.policy.Decide(call.From)
	rec := CallRecord{
		ID:             uuid.NewString(),
		CallerID:       call.From,
		Source:         "twilio",
		Decision:       resp.Action,
		RedirectNumber: resp.RedirectNumber,
		Timestamp:      call.OccurredAt.UTC().Format(backend.TimestampLayout),
		ReceivedAt:     s.now().UTC(),
		ProviderCallID: call.ProviderCallID,
	}

	var greeting string
	engage := resp.Action == backend.ActionRedirect && s.decoy != nil && call.ProviderCallID != ""
	if engage {
		greeting = s.decoy.Begin(call.ProviderCallID, call.From)
		rec.CallStatus = decoy.StatusInProgress
		if sess, ok := s.decoy.Session(call.ProviderCallID); ok {
			rec.Persona = sess.Persona
		}
	}
	s.store.AddCall(rec)

	switch {
	case engage:
		logger.From(ctx).InfoContext(ctx, "spam call answered by persona", "call_sid", call.ProviderCallID, "persona", rec.Persona)
		return s.gather(greeting, decoy.NoSpeechPrompt), nil
	case resp.Action == backend.ActionReject:
		return telephony.Decision{Action: telephony.ActionReject}, nil
	case resp.Action == backend.ActionRedirect:
		return telephony.Decision{Action: telephony.ActionDial, Target: resp.RedirectNumber}, nil
	default:
		if fwd := s.store.ForwardNumber(); fwd != "" {
			return telephony.Decision{Action: telephony.ActionDial, Target: fwd}, nil
		}
		return telephony.Decision{Action: telephony.ActionSay, Message: resp.Message}, nil
	}
}

// ContinueCall answers one speech turn of a persona call.
func (s *Server) ContinueCall(ctx context.Context, turn telephony.SpeechTurn) (telephony.Decision, error) {
	if s.decoy == nil {
		return telephony.Decision{}, errNoDecoy
	}
	line := s.decoy.Reply(turn.ProviderCallID, turn.Speech, turn.Confidence)
	return s.gather(line, decoy.StillHere), nil
}

// CallEnded stores the provider's final call status.
func (s *Server) CallEnded(ctx context.Context, rep telephony.StatusReport) error {
	if s.decoy != nil {
		s.decoy.Finish(rep.ProviderCallID, rep.Status, rep.DurationSeconds)
	}
	if !s.store.FinishProviderCall(rep.ProviderCallID, rep.Status, rep.DurationSeconds) {
		logger.From(ctx).DebugContext(ctx, "status for unrecorded call", "call_sid", rep.ProviderCallID)
	}
	return nil
}

func (s *Server) gather(line, fallback string) telephony.Decision {
	return telephony.Decision{
		Action:    telephony.ActionGather,
		Message:   line,
		Voice:     s.voice,
		GatherURL: s.speechURL,
		Fallback:  fallback,
	}
}

func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
