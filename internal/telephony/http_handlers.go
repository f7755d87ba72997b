package telephony

import (
	"net/http"
	"time"

	"callshield/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler converts the Twilio webhook to internal types,
// delegates the decision to Router, and writes TwiML.
//
// NOTE: This endpoint should be protected by Twilio signature validation in production.
type TwilioWebhookHandler struct {
	Router Router
	// Conversation serves the speech and status callbacks. Without it those
	// endpoints answer 404.
	Conversation Conversation
	Now          func() time.Time
}

func (h TwilioWebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Router == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "telephony router not configured"})
		return
	}

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	d, err := h.Router.RouteInbound(c.Request.Context(), form.ToInboundCall(h.Now()))
	if err != nil {
		log.Error("inbound call routing failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
		return
	}

	if writeTwiML(c, form.CallSid, d) {
		log.Info("twilio call routed", "call_sid", form.CallSid, "caller_id", form.From, "action", string(d.Action))
	}
}

// HandleSpeech answers the callback of a speech Gather.
func (h TwilioWebhookHandler) HandleSpeech(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Conversation == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversations not enabled"})
		return
	}

	turn, err := ParseTwilioSpeech(c.Request)
	if err != nil {
		log.Warn("twilio speech parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	d, err := h.Conversation.ContinueCall(c.Request.Context(), turn)
	if err != nil {
		log.Error("conversation turn failed", "call_sid", turn.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "conversation failed"})
		return
	}
	if writeTwiML(c, turn.ProviderCallID, d) {
		log.Debug("twilio speech answered", "call_sid", turn.ProviderCallID, "confidence", turn.Confidence)
	}
}

// HandleStatus records a call status callback.
func (h TwilioWebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Conversation == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversations not enabled"})
		return
	}

	rep, err := ParseTwilioStatus(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if err := h.Conversation.CallEnded(c.Request.Context(), rep); err != nil {
		log.Error("call status update failed", "call_sid", rep.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status failed"})
		return
	}
	log.Info("twilio call status", "call_sid", rep.ProviderCallID, "status", rep.Status, "duration_seconds", rep.DurationSeconds)
	c.Status(http.StatusNoContent)
}

func writeTwiML(c *gin.Context, callSid string, d Decision) bool {
	twiml, err := RenderTwiML(d)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "call_sid", callSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return false
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
	return true
}
