package http

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken          = errors.New("email is already in use")
	ErrPhoneTaken          = errors.New("phone number is already in use by another user")
	ErrBadCredentials      = errors.New("invalid email or password")
	ErrWrongPassword       = errors.New("current password is incorrect")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// User is a registered account of the booking API
type User struct {
	ID           int64
	Email        string
	Phone        string
	FullName     string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Enabled      bool
}

type refreshRecord struct {
	userID    int64
	expiresAt time.Time
}

// UserDirectory keeps accounts and their refresh tokens in memory.
// Each user holds at most one refresh token; issuing a new one revokes the old.
type UserDirectory struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]*User
	byEmail  map[string]int64
	refresh  map[string]refreshRecord
	byUser   map[int64]string
	now      func() time.Time
	hashCost int
}

// NewUserDirectory creates an empty user directory
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		users:    make(map[int64]*User),
		byEmail:  make(map[string]int64),
		refresh:  make(map[string]refreshRecord),
		byUser:   make(map[int64]string),
		now:      time.Now,
		hashCost: bcrypt.MinCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an enabled account
func (d *UserDirectory) Register(email, phone, fullName, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.hashCost)
	if err != nil {
		return User{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := normalizeEmail(email)
	if _, ok := d.byEmail[key]; ok {
		return User{}, ErrEmailTaken
	}
	if phone != "" && d.phoneInUseLocked(phone, 0) {
		return User{}, ErrPhoneTaken
	}

	d.nextID++
	now := d.now()
	user := &User{
		ID:           d.nextID,
		Email:        strings.TrimSpace(email),
		Phone:        phone,
		FullName:     fullName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
		Enabled:      true,
	}
	d.users[user.ID] = user
	d.byEmail[key] = user.ID

	return *user, nil
}

// Authenticate checks email and password
func (d *UserDirectory) Authenticate(email, password string) (User, error) {
	d.mu.RLock()
	id, ok := d.byEmail[normalizeEmail(email)]
	var user User
	if ok {
		user = *d.users[id]
	}
	d.mu.RUnlock()

	if !ok || !user.Enabled {
		return User{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrBadCredentials
	}
	return user, nil
}

// Get returns a user by ID
func (d *UserDirectory) Get(id int64) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *user, nil
}

// UpdateProfile changes name and phone
func (d *UserDirectory) UpdateProfile(id int64, fullName, phone string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if phone != user.Phone && d.phoneInUseLocked(phone, id) {
		return User{}, ErrPhoneTaken
	}

	user.FullName = fullName
	user.Phone = phone
	user.UpdatedAt = d.now()
	return *user, nil
}

// ChangePassword verifies the current password and stores the new one
func (d *UserDirectory) ChangePassword(id int64, current, next string) error {
	d.mu.RLock()
	user, ok := d.users[id]
	var hash []byte
	if ok {
		hash = user.PasswordHash
	}
	d.mu.RUnlock()

	if !ok {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(current)); err != nil {
		return ErrWrongPassword
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(next), d.hashCost)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	user.PasswordHash = newHash
	user.UpdatedAt = d.now()
	return nil
}

// IssueRefreshToken creates an opaque refresh token for the user and revokes the previous one
func (d *UserDirectory) IssueRefreshToken(userID int64, ttl time.Duration) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.issueLocked(userID, ttl)
}

// RotateRefreshToken redeems a refresh token and returns its owner and the replacement
func (d *UserDirectory) RotateRefreshToken(token string, ttl time.Duration) (User, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.refresh[token]
	if !ok {
		return User{}, "", ErrInvalidRefreshToken
	}
	if !d.now().Before(rec.expiresAt) {
		d.revokeLocked(rec.userID)
		return User{}, "", ErrInvalidRefreshToken
	}

	user, ok := d.users[rec.userID]
	if !ok || !user.Enabled {
		d.revokeLocked(rec.userID)
		return User{}, "", ErrInvalidRefreshToken
	}

	return *user, d.issueLocked(rec.userID, ttl), nil
}

// RevokeRefreshToken drops the user's refresh token
func (d *UserDirectory) RevokeRefreshToken(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revokeLocked(userID)
}

func (d *UserDirectory) issueLocked(userID int64, ttl time.Duration) string {
	d.revokeLocked(userID)
	token := uuid.NewString()
	d.refresh[token] = refreshRecord{userID: userID, expiresAt: d.now().Add(ttl)}
	d.byUser[userID] = token
	return token
}

func (d *UserDirectory) revokeLocked(userID int64) {
	if old, ok := d.byUser[userID]; ok {
		delete(d.refresh, old)
		delete(d.byUser, userID)
	}
}

func (d *UserDirectory) phoneInUseLocked(phone string, except int64) bool {
	for id, u := range d.users {
		if id != except && u.Phone == phone {
			return true
		}
	}
	return false
}
