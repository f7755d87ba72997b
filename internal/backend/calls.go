package backend

import (
	"context"
	"errors"
	"net/http"

	"callshield/internal/calls"
)

// RouteCall asks the backend what to do with an incoming call. It never
// fails: unreachable or misbehaving backends yield an "allow" fallback.
func (c *Client) RouteCall(ctx context.Context, req RouteRequest) RouteResponse {
	var resp RouteResponse
	if _, err := c.Send(ctx, http.MethodPost, PathRouteCall, req, &resp); err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			c.log.Warn("route call: invalid response, allowing", "caller_id", req.CallerID, "err", err)
			return InvalidResponse()
		}
		c.log.Warn("route call: backend unavailable, allowing", "caller_id", req.CallerID, "err", err)
		return UnavailableResponse()
	}
	if resp.Action == "" {
		c.log.Warn("route call: response without action, allowing", "caller_id", req.CallerID)
		return InvalidResponse()
	}
	return resp
}

// NotifyCallStatus reports a status change. Best-effort: the result is a
// success flag, never an error.
func (c *Client) NotifyCallStatus(ctx context.Context, callerID string, status calls.NotifyStatus) bool {
	_, err := c.Send(ctx, http.MethodPost, PathCallStatus, CallStatusRequest{
		CallerID:  callerID,
		Status:    string(status),
		Timestamp: c.timestamp(),
	}, nil)
	return err == nil
}

// RegisterDevice announces this device to the backend. Repeating it is harmless.
func (c *Client) RegisterDevice(ctx context.Context, deviceID, phoneNumber string) bool {
	_, err := c.Send(ctx, http.MethodPost, PathRegisterDevice, DeviceRegistration{
		DeviceID:    deviceID,
		PhoneNumber: phoneNumber,
		Platform:    c.platform,
		Timestamp:   c.timestamp(),
	}, nil)
	return err == nil
}

// GetRoutingConfig fetches the backend-defined configuration blob.
func (c *Client) GetRoutingConfig(ctx context.Context) (map[string]any, bool) {
	var out map[string]any
	if _, err := c.Send(ctx, http.MethodGet, PathRoutingConfig, nil, &out); err != nil {
		return nil, false
	}
	return out, true
}

// TestConnection reports whether GET /health answers 200.
func (c *Client) TestConnection(ctx context.Context) bool {
	status, err := c.Send(ctx, http.MethodGet, PathHealth, nil, nil)
	return err == nil && status == http.StatusOK
}
