// Package session 提供当前用户身份与访问令牌的唯一来源
//
// Manager 以显式注入的方式交给课程状态存储等模块使用，
// 会话数据持久化到本地 JSON 文件，进程重启后自动恢复。
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"learnhub/internal/logger"
)

// User 当前登录用户
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"` // admin 或 user
	Avatar string `json:"avatar,omitempty"`
}

// Session 用户身份与 Bearer 令牌
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Provider 只读的会话来源
type Provider interface {
	// Current 返回当前会话，未登录时第二个返回值为 false
	Current() (Session, bool)
}

// Listener 会话变化回调，登出时 active 为 false
type Listener func(s Session, active bool)

// Manager 会话管理器
type Manager struct {
	filePath  string
	mu        sync.RWMutex
	current   *Session
	listeners []Listener
	logger    *logger.Logger
}

// NewManager 创建会话管理器并尝试从文件恢复会话
// 参数:
//
//	filePath: 会话文件路径，为空时仅保存在内存中
//	loggerInstance: 日志记录器实例
func NewManager(filePath string, loggerInstance *logger.Logger) *Manager {
	m := &Manager{
		filePath: filePath,
		logger:   loggerInstance,
	}
	if err := m.restore(); err != nil {
		m.logger.Warn("恢复会话失败，将以未登录状态启动: %v", err)
	}
	return m
}

// Current 返回当前会话
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.Token == "" {
		return Session{}, false
	}
	return *m.current, true
}

// Login 设置新的用户与令牌并持久化
func (m *Manager) Login(user User, token string) error {
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if user.Role == "" {
		user.Role = "user"
	}
	s := Session{User: user, Token: token}

	m.mu.Lock()
	m.current = &s
	listeners := append([]Listener(nil), m.listeners...)
	err := m.persist(&s)
	m.mu.Unlock()

	m.logger.Info("用户已登录: id=%s email=%s", user.ID, user.Email)
	for _, fn := range listeners {
		fn(s, true)
	}
	return err
}

// Logout 清除当前会话与会话文件
func (m *Manager) Logout() error {
	m.mu.Lock()
	wasActive := m.current != nil
	m.current = nil
	listeners := append([]Listener(nil), m.listeners...)
	err := m.persist(nil)
	m.mu.Unlock()

	if wasActive {
		m.logger.Info("用户已登出")
		for _, fn := range listeners {
			fn(Session{}, false)
		}
	}
	return err
}

// Subscribe 注册会话变化回调
func (m *Manager) Subscribe(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// restore 从文件恢复会话，令牌已过期时丢弃
func (m *Manager) restore() error {
	if m.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取会话文件失败: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("会话文件格式错误: %w", err)
	}
	if s.Token == "" {
		return nil
	}
	if info, err := InspectToken(s.Token); err == nil && info.Expired(time.Now()) {
		m.logger.Info("会话令牌已过期，忽略本地会话")
		return nil
	}

	m.current = &s
	m.logger.Debug("已恢复会话: id=%s", s.User.ID)
	return nil
}

// persist 写入或删除会话文件，调用方需持有写锁
func (m *Manager) persist(s *Session) error {
	if m.filePath == "" {
		return nil
	}
	if s == nil {
		if err := os.Remove(m.filePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除会话文件失败: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o700); err != nil {
		return fmt.Errorf("创建会话目录失败: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0o600); err != nil {
		return fmt.Errorf("写入会话文件失败: %w", err)
	}
	return nil
}
