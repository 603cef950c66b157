package users

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/crypto"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Roles assignable to a user account.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	Name                string `gorm:"not null" json:"name"`
	Email               string `gorm:"uniqueIndex" json:"email"`
	Role                string `gorm:"default:'USER'" json:"role"`
	EncryptedPassword   string `json:"-"`
	ResetPasswordToken  sql.NullString `json:"-"`
	ResetPasswordSentAt sql.NullTime   `json:"-"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrUserExists is returned when attempting to create a user that already exists.
var ErrUserExists = errors.New("user already exists")

// ErrUserNotFound is returned when a user lookup fails.
var ErrUserNotFound = gorm.ErrRecordNotFound

// ErrResetTokenInvalid is returned when a password reset token does not match
// any user or has expired.
var ErrResetTokenInvalid = errors.New("password reset token is invalid or has expired")

// Reset tokens are single use and short lived.
const resetTokenTTL = 10 * time.Minute

// FindByEmail retrieves a user by email.
func FindByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID retrieves a user by ID.
func FindByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetAllUsers retrieves every user account, newest first.
func GetAllUsers(db *gorm.DB) ([]User, error) {
	var all []User
	if err := db.Order("created_at DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return all, nil
}

// CreateUser creates a new account with the supplied credentials. It returns
// ErrUserExists if the email is already taken.
func CreateUser(logger *slog.Logger, db *gorm.DB, name, email, password, role string) (*User, error) {
	if email == "" {
		return nil, errors.New("email cannot be empty")
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	if _, err := FindByEmail(db, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if role == "" {
		role = RoleUser
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return nil, err
	}

	newUser := User{
		Name:              name,
		Email:             email,
		Role:              role,
		EncryptedPassword: string(hashedPassword),
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&newUser).Error
	})
	if err != nil {
		return nil, err
	}
	return &newUser, nil
}

// Authenticate verifies an email and password pair and returns the matching
// user. A constant-cost dummy comparison runs for unknown emails so response
// timing does not reveal whether an account exists.
func Authenticate(db *gorm.DB, email, password string) (*User, error) {
	dummyHash := "$2a$12$K3JNi5xUf0Kz7a9PqXhZPOdOqMLKXeUQfTGUKJ0yqRvUPUdPupRWm"

	user, err := FindByEmail(db, email)
	if err != nil {
		crypto.VerifyPassword(dummyHash, password)
		return nil, ErrUserNotFound
	}

	if !crypto.VerifyPassword(user.EncryptedPassword, password) {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateDetails changes a user's name and email.
func UpdateDetails(logger *slog.Logger, db *gorm.DB, id uint, name, email string) (*User, error) {
	user, err := FindByID(db, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if email != "" && email != user.Email {
		if _, err := FindByEmail(db, email); err == nil {
			return nil, ErrUserExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		updates["email"] = email
	}
	if len(updates) == 0 {
		return user, nil
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(user).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return FindByID(db, id)
}

// ChangePassword updates a user's password given their email.
func ChangePassword(logger *slog.Logger, db *gorm.DB, email, password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	user, err := FindByEmail(db, email)
	if err != nil {
		return err
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return err
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(user).Update("encrypted_password", string(hashedPassword)).Error
	})
}

// DeleteUser removes a user account by ID.
func DeleteUser(logger *slog.Logger, db *gorm.DB, id uint) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Delete(&User{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// GenerateResetToken creates a password reset token for the user with the
// given email and stores its SHA-256 digest. The plaintext token is returned
// for delivery; only the digest ever touches the database.
func GenerateResetToken(logger *slog.Logger, db *gorm.DB, email string) (string, error) {
	user, err := FindByEmail(db, email)
	if err != nil {
		return "", err
	}

	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)
	digest := hashToken(token)

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(user).Updates(map[string]interface{}{
			"reset_password_token":   digest,
			"reset_password_sent_at": time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword consumes a reset token and sets a new password. The token is
// cleared whether or not it was still fresh.
func ResetPassword(logger *slog.Logger, db *gorm.DB, token, password string) (*User, error) {
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}

	var user User
	digest := hashToken(token)
	err := db.Where("reset_password_token = ?", digest).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, err
	}

	if !user.ResetPasswordSentAt.Valid ||
		time.Since(user.ResetPasswordSentAt.Time) > resetTokenTTL {
		return nil, ErrResetTokenInvalid
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return nil, err
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&user).Updates(map[string]interface{}{
			"encrypted_password":     string(hashedPassword),
			"reset_password_token":   nil,
			"reset_password_sent_at": nil,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetupAdminUserIfNotExists creates a default admin in the database if it
// doesn't already exist.
func SetupAdminUserIfNotExists(db *gorm.DB, email string) {
	logger := slog.Default()
	hashedPassword, err := crypto.GeneratePasswordHash("password")
	if err != nil {
		logger.Error("Failed to generate password hash", slog.Any("error", err))
		return
	}
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO users (name, email, role, encrypted_password, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?)
            ON CONFLICT(email) DO NOTHING
        `, "Admin", email, RoleAdmin, hashedPassword, time.Now().UTC(), time.Now().UTC()).Error
	})
	if err != nil {
		logger.Error("Failed to upsert admin user", slog.String("email", email), slog.Any("error", err))
		return
	}
	logger.Info("Ensured admin user exists", slog.String("email", email))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
