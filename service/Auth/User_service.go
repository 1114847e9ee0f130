package Auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

var (
	ErrUserExists         = Errs.New(Errs.KindConflict, "用户名或邮箱已存在")
	ErrUserNotFound       = Errs.New(Errs.KindNotFound, "用户不存在")
	ErrInvalidCredentials = Errs.New(Errs.KindUnauthorized, "用户名或密码错误")
)

// UserService 用户服务接口
type UserService interface {
	CreateUser(ctx context.Context, req database.RegisterRequest) (*database.User, error)
	// Authenticate account 可以是用户名或邮箱，成功后更新最后登录时间
	Authenticate(ctx context.Context, account, password string) (*database.User, error)
	GetUserByID(ctx context.Context, id uint) (*database.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.User, error)
	GetUserByUsername(ctx context.Context, username string) (*database.User, error)
}

// 用户服务实现
type userService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewUserService(db *gorm.DB, logger *zap.Logger) (UserService, error) {
	if db == nil {
		return nil, errors.New("数据库连接不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{db: db, logger: logger}, nil
}

// CreateUser 创建用户
func (s *userService) CreateUser(ctx context.Context, req database.RegisterRequest) (*database.User, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)
	if username == "" || email == "" {
		return nil, Errs.Validation("用户名和邮箱不能为空")
	}
	if len(req.Password) < 6 {
		return nil, Errs.Validation("密码长度不能少于6位")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	user := &database.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	s.logger.Info("用户注册成功", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, account, password string) (*database.User, error) {
	account = strings.TrimSpace(account)
	var user database.User
	query := s.db.WithContext(ctx)
	if strings.Contains(account, "@") {
		query = query.Where("email = ?", normalizeEmail(account))
	} else {
		query = query.Where("username = ?", account)
	}
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// 更新最后登录时间，失败不影响登录
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		s.logger.Warn("更新最后登录时间失败", zap.Uint("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
	}
	return &user, nil
}

// GetUserByID 根据ID获取用户
func (s *userService) GetUserByID(ctx context.Context, id uint) (*database.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *userService) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	return s.first(ctx, "email = ?", normalizeEmail(email))
}

// GetUserByUsername 根据用户名获取用户
func (s *userService) GetUserByUsername(ctx context.Context, username string) (*database.User, error) {
	return s.first(ctx, "username = ?", strings.TrimSpace(username))
}

func (s *userService) first(ctx context.Context, query string, arg interface{}) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword bcrypt 只使用前72字节
func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		password = password[:72]
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func VerifyPassword(password, hash string) bool {
	if len(password) > 72 {
		password = password[:72]
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
