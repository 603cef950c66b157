package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"formlane/internal"
	"formlane/internal/config"
	"formlane/internal/forms"
	"formlane/internal/responses"
	"formlane/internal/uploads"
	"formlane/internal/users"
	"formlane/internal/visits"
	"github.com/karloscodes/cartridge/cache"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with formlane's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all formlane models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&users.User{},
		&forms.Form{},
		&visits.Visit{},
		&responses.Response{},
		&uploads.FileUpload{},
	}
}

// SetupTestDB creates a test database with all formlane models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	// Same partial index production migrations create
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_responses_open_visit
		ON responses (form_id, visit_id)
		WHERE is_complete = 0
	`).Error; err != nil {
		t.Fatalf("testsupport: failed to create partial index: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set FORMLANE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestUser creates a user with a properly hashed password
func CreateTestUser(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &users.User{
		Name:              "Test User",
		Email:             email,
		Role:              users.RoleUser,
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTestAdmin creates an admin user with a properly hashed password
func CreateTestAdmin(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()

	user := CreateTestUser(t, db, email, password)
	require.NoError(t, db.Model(user).Update("role", users.RoleAdmin).Error)
	user.Role = users.RoleAdmin
	return user
}

// CreateTestForm creates a published form with a default single text field
// unless fields are supplied.
func CreateTestForm(t *testing.T, db *gorm.DB, userID uint, fields ...forms.Field) *forms.Form {
	t.Helper()

	if len(fields) == 0 {
		fields = []forms.Field{
			{ID: "name", Type: forms.FieldText, Label: "Name", Required: true},
		}
	}

	form := &forms.Form{
		UserID:    userID,
		Title:     "Test Form",
		Slug:      fmt.Sprintf("test-form-%s", uuid.NewString()[:8]),
		Status:    forms.StatusPublished,
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(form).Error)
	return form
}

// CreateTestVisit creates a visit for a form at the given start time.
func CreateTestVisit(t *testing.T, db *gorm.DB, formID uint, startedAt time.Time, opts ...func(*visits.Visit)) *visits.Visit {
	t.Helper()

	visit := &visits.Visit{
		VisitID:         uuid.NewString(),
		FormID:          formID,
		StartedAt:       startedAt,
		Device:          "desktop",
		Browser:         "Chrome",
		OperatingSystem: "Linux",
		CreatedAt:       time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(visit)
	}
	require.NoError(t, db.Create(visit).Error)
	return visit
}

// CreateTestResponse creates a response row directly, bypassing the merge
// engine. Useful for seeding analytics fixtures.
func CreateTestResponse(t *testing.T, db *gorm.DB, formID uint, visitID string, answers responses.AnswerList, complete bool, timeSpent int) *responses.Response {
	t.Helper()

	now := time.Now().UTC()
	response := &responses.Response{
		FormID:      formID,
		VisitID:     visitID,
		Answers:     answers,
		StartedAt:   now.Add(-time.Duration(timeSpent) * time.Second),
		IsComplete:  complete,
		TimeSpent:   timeSpent,
		SubmittedAt: now,
		CreatedAt:   now,
	}
	if complete {
		response.CompletedAt = &now
	}
	require.NoError(t, db.Create(response).Error)
	return response
}

// CreateTestApp creates a test Fiber app with all API routes mounted
func CreateTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
