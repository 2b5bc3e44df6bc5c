package dto

import (
	"MedVault/internal/service"
	"MedVault/model"
	"time"
)

const (
	ShareStateGranted       = "granted"
	ShareStateAccessDenied  = "access_denied"
	ShareStateConfiguration = "configuration_error"
)

type LoginResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    *model.User `json:"user"`
}

type ShareInfo struct {
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   *int      `json:"max_uses"`
	UseCount  int       `json:"use_count"`
}

// SharedRecordsResponse is the share view payload.
type SharedRecordsResponse struct {
	State         string                 `json:"state"`
	Authenticated bool                   `json:"authenticated"`
	Share         ShareInfo              `json:"share"`
	Records       []service.SharedRecord `json:"records"`
}

type ShareDeniedResponse struct {
	State string `json:"state"`
	Error string `json:"error"`
}

type UploadResponse struct {
	Uploaded int                    `json:"uploaded"`
	Failed   int                    `json:"failed"`
	Results  []service.UploadResult `json:"results"`
}
