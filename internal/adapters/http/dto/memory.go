package dto

import (
	"github.com/slovoapp/slovo/internal/domain/models"
)

type MemoryListResponse struct {
	Items      []*models.MemoryMetadata `json:"items"`
	TotalCount int                      `json:"total_count"`
	Limit      int                      `json:"limit"`
	Offset     int                      `json:"offset"`
}

type MemoryUpdateRequest struct {
	Content    *string  `json:"content,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type MemoryDeleteRequest struct {
	Confirm bool `json:"confirm"`
}

type MemoryResetRequest struct {
	ConfirmFullReset    bool `json:"confirm_full_reset"`
	PreserveUserProfile bool `json:"preserve_user_profile"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// ProfileUpdateRequest carries a partial profile update; absent fields
// keep their stored values.
type ProfileUpdateRequest struct {
	PreferredLanguages   []string `json:"preferred_languages,omitempty"`
	CommunicationStyle   *string  `json:"communication_style,omitempty"`
	PrivacyLevel         *string  `json:"privacy_level,omitempty"`
	MemoryCaptureEnabled *bool    `json:"memory_capture_enabled,omitempty"`
}

// Apply folds the request into an existing profile
func (r *ProfileUpdateRequest) Apply(profile *models.UserProfile) {
	if r.PreferredLanguages != nil {
		profile.PreferredLanguages = r.PreferredLanguages
	}
	if r.CommunicationStyle != nil {
		profile.CommunicationStyle = *r.CommunicationStyle
	}
	if r.PrivacyLevel != nil {
		profile.PrivacyLevel = *r.PrivacyLevel
	}
	if r.MemoryCaptureEnabled != nil {
		profile.MemoryCaptureEnabled = *r.MemoryCaptureEnabled
	}
}
