package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"learnhub/internal/logger"
	"learnhub/internal/session"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCredentials 邮箱或密码错误
var ErrInvalidCredentials = errors.New("invalid email or password")

// DemoEmail / DemoPassword 用户文件不存在时自动创建的演示账号
const (
	DemoEmail    = "demo@learnhub.local"
	DemoPassword = "learnhub"
)

// Account 用户账号
type Account struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	Avatar       string `yaml:"avatar,omitempty"`
	PasswordHash string `yaml:"passwordHash"`
}

type usersFile struct {
	Users []Account `yaml:"users"`
}

// Users 用户目录
type Users struct {
	mu      sync.RWMutex
	byEmail map[string]Account
	logger  *logger.Logger
}

// HashPassword 生成 bcrypt 哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// NewUsers 基于账号列表创建用户目录
func NewUsers(accounts []Account, loggerInstance *logger.Logger) *Users {
	u := &Users{byEmail: make(map[string]Account), logger: loggerInstance}
	for _, a := range accounts {
		if a.Role == "" {
			a.Role = "user"
		}
		u.byEmail[strings.ToLower(a.Email)] = a
	}
	return u
}

// LoadUsers 从 YAML 文件加载用户
// 文件不存在时写入一个演示账号，便于本地试用
func LoadUsers(path string, loggerInstance *logger.Logger) (*Users, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return initUsers(path, loggerInstance)
	}
	if err != nil {
		return nil, fmt.Errorf("读取用户文件失败: %w", err)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析用户文件失败: %w", err)
	}
	for i, a := range f.Users {
		if a.ID == "" || a.Email == "" || a.PasswordHash == "" {
			return nil, fmt.Errorf("users[%d]: id, email and passwordHash are required", i)
		}
	}
	loggerInstance.Debug("Loaded %d users from %s", len(f.Users), path)
	return NewUsers(f.Users, loggerInstance), nil
}

func initUsers(path string, loggerInstance *logger.Logger) (*Users, error) {
	hash, err := HashPassword(DemoPassword)
	if err != nil {
		return nil, err
	}
	f := usersFile{Users: []Account{{
		ID:           "demo",
		Name:         "Demo Learner",
		Email:        DemoEmail,
		Role:         "user",
		PasswordHash: hash,
	}}}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建用户目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("写入用户文件失败: %w", err)
	}
	loggerInstance.Info("用户文件不存在，已创建演示账号 %s", DemoEmail)
	return NewUsers(f.Users, loggerInstance), nil
}

// Authenticate 校验邮箱与密码
func (u *Users) Authenticate(email, password string) (session.User, error) {
	u.mu.RLock()
	a, ok := u.byEmail[strings.ToLower(strings.TrimSpace(email))]
	u.mu.RUnlock()
	if !ok {
		return session.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return session.User{}, ErrInvalidCredentials
	}
	return a.User(), nil
}

// Len 返回用户数量
func (u *Users) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.byEmail)
}

// User 转换为会话中的用户信息
func (a Account) User() session.User {
	return session.User{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role, Avatar: a.Avatar}
}
