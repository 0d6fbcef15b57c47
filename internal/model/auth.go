package model

import "time"

// LoginRequest is the payload for unique-id authentication over the bridge.
// Blank values are let through binding so the login controller reports them.
type LoginRequest struct {
	UniqueID string `json:"unique_id" binding:"max=64"`
	Password string `json:"password" binding:"max=128"`
}

// SessionInfo is the part of a provider session handed to bridge clients.
type SessionInfo struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResponse is returned after a successful bridge login.
type LoginResponse struct {
	Profile *Profile     `json:"profile"`
	Session *SessionInfo `json:"session,omitempty"`
}
