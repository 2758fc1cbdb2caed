package httpapi

import (
	"linova-go/internal/models"
	"linova-go/internal/services"
)

type UserMetadataDTO struct {
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

type UserDTO struct {
	ID       string          `json:"id"`
	Email    string          `json:"email"`
	Metadata UserMetadataDTO `json:"user_metadata"`
}

type SessionDTO struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresAt    int64   `json:"expires_at"`
	User         UserDTO `json:"user"`
}

func buildUserDTO(user models.User) UserDTO {
	dto := UserDTO{ID: user.ID, Email: user.Email}
	if user.Name != nil {
		dto.Metadata.Name = *user.Name
	}
	if user.FullName != nil {
		dto.Metadata.FullName = *user.FullName
	}
	return dto
}

func buildSessionDTO(pair services.TokenPair, user models.User) SessionDTO {
	return SessionDTO{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    pair.ExpiresAt,
		User:         buildUserDTO(user),
	}
}
