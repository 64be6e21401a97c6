package game

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AccountStore 内存账号表：注册、登录，登录成功后提供 CurrentUser
type AccountStore struct {
	mu      sync.RWMutex
	hashes  map[string][]byte
	current string
	cost    int
}

// NewAccountStore 创建空账号表
func NewAccountStore() *AccountStore {
	return &AccountStore{hashes: make(map[string][]byte), cost: bcrypt.DefaultCost}
}

// Register 用户名不存在时注册
func (s *AccountStore) Register(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[username]; ok {
		return ErrAccountExists
	}
	s.hashes[username] = hash
	return nil
}

// Login 校验账号密码，成功后成为当前用户
func (s *AccountStore) Login(username, password string) error {
	username = strings.TrimSpace(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.hashes[username]
	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	s.current = username
	return nil
}

// Logout 清除当前用户
func (s *AccountStore) Logout() {
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
}

// CurrentUser 实现 CredentialStore
func (s *AccountStore) CurrentUser() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != ""
}
