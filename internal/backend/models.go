package backend

// Wire types of the routing backend. Field names follow the backend's JSON.

const (
	PathRouteCall      = "/route-call"
	PathCallStatus     = "/call-status"
	PathRegisterDevice = "/register-device"
	PathRoutingConfig  = "/routing-config"
	PathHealth         = "/health"
)

// TimestampLayout is the ISO-8601 form the backend expects (millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type RequestAction string

const (
	RequestRoute   RequestAction = "route"
	RequestReject  RequestAction = "reject"
	RequestForward RequestAction = "forward"
)

type RouteRequest struct {
	CallerID  string        `json:"callerId"`
	Timestamp string        `json:"timestamp"`
	DeviceID  string        `json:"deviceId"`
	Action    RequestAction `json:"action"`
}

// Action is the routing decision returned by the backend.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionReject   Action = "reject"
	ActionRedirect Action = "redirect"
)

type RouteResponse struct {
	Success        bool   `json:"success"`
	Action         Action `json:"action"`
	RedirectNumber string `json:"redirectNumber,omitempty"`
	Message        string `json:"message,omitempty"`
}

type CallStatusRequest struct {
	CallerID  string `json:"callerId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type DeviceRegistration struct {
	DeviceID    string `json:"deviceId"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Platform    string `json:"platform"`
	Timestamp   string `json:"timestamp"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

const (
	MessageUnavailable     = "Backend service unavailable"
	MessageInvalidResponse = "Invalid backend response"
)

// UnavailableResponse is substituted when the backend cannot be reached.
func UnavailableResponse() RouteResponse {
	return RouteResponse{Success: false, Action: ActionAllow, Message: MessageUnavailable}
}

// InvalidResponse is substituted when the backend answers with something unusable.
func InvalidResponse() RouteResponse {
	return RouteResponse{Success: false, Action: ActionAllow, Message: MessageInvalidResponse}
}
