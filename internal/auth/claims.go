package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Claims is the control API token shape. A token is scoped to one device;
// Subject names the operator or tool holding it.
type Claims struct {
	jwt.RegisteredClaims

	DeviceID  string    `json:"device_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
