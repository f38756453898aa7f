package services

import (
	"strings"
	"time"

	"loyalty-attendance-backend/internal/config"
	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"
	"loyalty-attendance-backend/internal/utils"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

type AuthService struct {
	repo *repositories.Repository
	cfg  *config.Config
}

func NewAuthService(repo *repositories.Repository, cfg *config.Config) *AuthService {
	return &AuthService{repo: repo, cfg: cfg}
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *AuthService) Authenticate(email, password string) (*LoginResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	if email == "" || password == "" {
		return nil, NewDomainError("email and password are required", ErrInvalidInput, nil)
	}

	user, err := s.repo.Users.GetUserByEmail(email)
	if err != nil {
		return nil, NewDomainError("invalid credentials", ErrPermissionDenied, nil)
	}

	if err := utils.CheckPassword(password, user.Password); err != nil {
		return nil, NewDomainError("invalid credentials", ErrPermissionDenied, nil)
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, NewDomainError("failed to generate token", ErrDatabase, err)
	}

	user.Password = ""
	return &LoginResponse{
		Token: token,
		User:  user,
	}, nil
}

func (s *AuthService) CreateUser(email, password, role string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	role = strings.TrimSpace(strings.ToLower(role))

	allowedRoles := map[string]bool{"admin": true, "organizer": true, "staff": true}
	if !allowedRoles[role] {
		return nil, NewDomainError("invalid role: must be admin, organizer, or staff", ErrInvalidInput, nil)
	}

	if existing, _ := s.repo.Users.GetUserByEmail(email); existing != nil {
		return nil, NewDomainError("email already registered", ErrAlreadyRegistered, nil)
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:       uuid.New(),
		Email:    email,
		Password: hashedPassword,
		Role:     role,
	}

	if err := s.repo.Users.CreateUser(user); err != nil {
		return nil, NewDomainError("failed to create user", ErrDatabase, err)
	}

	user.Password = ""
	return user, nil
}

func (s *AuthService) generateJWT(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) GetUserProfile(userID string) (*models.User, error) {
	user, err := s.repo.Users.GetUserByID(userID)
	if err != nil {
		return nil, NewDomainError("user not found", ErrPersonaNotFound, err)
	}

	user.Password = ""
	return user, nil
}
