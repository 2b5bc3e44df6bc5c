package service

import (
	"MedVault/internal/repo"
	"MedVault/model"
	"MedVault/utils"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultActivationTTL = 10 * time.Minute

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Exists(ctx context.Context, username, email string) (bool, error)
}

// ActivationStore holds registrations until the activation link is opened.
type ActivationStore interface {
	Save(ctx context.Context, token string, pending repo.PendingUser, ttl time.Duration) error
	Load(ctx context.Context, token string) (*repo.PendingUser, error)
	Consume(ctx context.Context, token string, ttl time.Duration) error
	WasUsed(ctx context.Context, token string) bool
	Lock(ctx context.Context, token string) (func(), error)
}

type ActivationMailer interface {
	Enabled() bool
	SendActivateMail(to, link string) error
}

type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

type RegisterResult struct {
	// Activated is true when the account was created immediately because mail is disabled.
	Activated bool `json:"activated"`
}

type UserService struct {
	users         UserStore
	activations   ActivationStore
	mailer        ActivationMailer
	jwt           *utils.JWTManager
	activationTTL time.Duration
	log           *logrus.Logger
}

func NewUserService(users UserStore, activations ActivationStore, mailer ActivationMailer, jwt *utils.JWTManager, log *logrus.Logger) *UserService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UserService{
		users:         users,
		activations:   activations,
		mailer:        mailer,
		jwt:           jwt,
		activationTTL: defaultActivationTTL,
		log:           log,
	}
}

// ActivationLink is the address mailed to a new user.
func ActivationLink(origin, token string) string {
	return origin + "/api/activate?token=" + url.QueryEscape(token)
}

// Register creates the account directly when mail is disabled, otherwise it parks the
// registration and mails an activation link.
func (s *UserService) Register(ctx context.Context, in RegisterInput, origin string) (*RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}
	if in.ConfirmPassword != "" && in.ConfirmPassword != in.Password {
		return nil, fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}

	exists, err := s.users.Exists(ctx, in.Username, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}
	hash, err := utils.GetPwd(in.Password)
	if err != nil {
		return nil, err
	}

	if s.mailer == nil || !s.mailer.Enabled() || s.activations == nil {
		user := &model.User{UserName: in.Username, Email: in.Email, Password: hash, IsActive: true}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, createUserError(err)
		}
		return &RegisterResult{Activated: true}, nil
	}

	token := utils.GetToken()
	pending := repo.PendingUser{Email: in.Email, Username: in.Username, PasswordHash: hash}
	if err := s.activations.Save(ctx, token, pending, s.activationTTL); err != nil {
		return nil, fmt.Errorf("cache activation token failed: %w", err)
	}
	if err := s.mailer.SendActivateMail(in.Email, ActivationLink(origin, token)); err != nil {
		s.log.WithError(err).WithField("email", in.Email).Error("send activation mail failed")
		return nil, fmt.Errorf("send activation email failed: %w", err)
	}
	return &RegisterResult{Activated: false}, nil
}

// Activate turns a pending registration into an active user. Opening the same link
// twice reports ErrAlreadyActivated while the used marker lives.
func (s *UserService) Activate(ctx context.Context, token string) error {
	if token == "" || s.activations == nil {
		return ErrActivationInvalid
	}
	unlock, err := s.activations.Lock(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrLockBusy) {
			return fmt.Errorf("%w: activation already in progress", ErrActivationInvalid)
		}
		return err
	}
	defer unlock()

	pending, err := s.activations.Load(ctx, token)
	if err != nil {
		if s.activations.WasUsed(ctx, token) {
			return ErrAlreadyActivated
		}
		if errors.Is(err, repo.ErrActivationNotFound) {
			return ErrActivationInvalid
		}
		return err
	}

	user := &model.User{UserName: pending.Username, Email: pending.Email, Password: pending.PasswordHash, IsActive: true}
	if err := s.users.Create(ctx, user); err != nil {
		return createUserError(err)
	}
	if err := s.activations.Consume(ctx, token, s.activationTTL); err != nil {
		s.log.WithError(err).Warn("consume activation token failed")
	}
	return nil
}

// Login checks the password and issues a session token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !utils.CheckPwd(password, user.Password) {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrAccountInactive
	}
	token, err := s.jwt.GenerateToken(user.ID, user.UserName)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func createUserError(err error) error {
	if errors.Is(err, repo.ErrDuplicateUser) {
		return fmt.Errorf("%w: %v", ErrUserExists, err)
	}
	return fmt.Errorf("create user: %w", err)
}
