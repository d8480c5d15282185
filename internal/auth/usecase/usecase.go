package usecase

import (
	authdomain "taskmind-backend/internal/auth/domain"
	authdto "taskmind-backend/internal/auth/dto"
)

// AuthUsecase defines the interface for authentication business logic
type AuthUsecase interface {
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	GoogleSignIn(idToken string) (*authdto.TokenResponse, error)
	RefreshToken(refreshToken string) (*authdto.TokenResponse, error)
	Logout(refreshToken string) error
	ValidateToken(tokenString string) (*authdomain.User, error)

	// RegisterFCMToken stores a device token for push delivery
	RegisterFCMToken(userID, token, deviceInfo string) error
	// UnregisterFCMToken drops a device token
	UnregisterFCMToken(token string) error
}
