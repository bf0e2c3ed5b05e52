package validators

import (
	"strings"

	"rakshak/internal/models"
	"rakshak/internal/utils"
)

// SetUserRequest is the login hand-off from the host app.
type SetUserRequest struct {
	ID    string `json:"id" validate:"required,max=128"`
	Name  string `json:"name" validate:"omitempty,max=100"`
	Phone string `json:"phone" validate:"omitempty,phone_number"`
}

type CodeWordRequest struct {
	CodeWord string `json:"code_word" validate:"omitempty,max=64,trigger_phrase"`
}

// ValidateSetUser trims the request and normalises the phone number with
// countryCode before validating it.
func ValidateSetUser(req *SetUserRequest, countryCode string) ValidationErrors {
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if req.Phone != "" {
		req.Phone = utils.NormalizePhone(req.Phone, countryCode)
	}
	return ValidateStruct(req)
}

func ValidateCodeWord(req *CodeWordRequest) ValidationErrors {
	req.CodeWord = strings.TrimSpace(req.CodeWord)
	return ValidateStruct(req)
}

func (r *SetUserRequest) ToUser() *models.User {
	return &models.User{ID: r.ID, Name: r.Name, Phone: r.Phone}
}
