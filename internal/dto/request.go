package dto

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password"`
	Email           string `json:"email" binding:"required"`
}

type CreateShareLinkRequest struct {
	Days    int `json:"days" binding:"gte=0"`
	MaxUses int `json:"max_uses" binding:"gte=0"`
}

// UploadMetadata is bound from the multipart form next to files[].
type UploadMetadata struct {
	RecordType   string `form:"record_type"`
	RecordDate   string `form:"record_date"`
	ProviderName string `form:"provider_name"`
	Notes        string `form:"notes"`
}
