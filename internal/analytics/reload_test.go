package analytics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kitsunehq/kitsune-backend/internal/database"
	"github.com/kitsunehq/kitsune-backend/internal/models"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("kitsune_test"),
		tcpostgres.WithUsername("kitsune"),
		tcpostgres.WithPassword("kitsune"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}

	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}

	if err := database.Migrate(testDB); err != nil {
		log.Fatalf("failed to migrate test database: %v", err)
	}

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %v", err)
	}
	os.Exit(code)
}

// fakeSource replays a fixed set of (question, visits) pairs.
type fakeSource struct {
	pairs map[int]int
}

func (f *fakeSource) PageviewsByQuestion(_ context.Context, fn func(questionID, visits int) error) error {
	for id, visits := range f.pairs {
		if err := fn(id, visits); err != nil {
			return err
		}
	}
	return nil
}

func resetTables(t *testing.T) {
	t.Helper()
	for _, m := range []any{&models.QuestionVisits{}, &models.Question{}, &models.User{}} {
		require.NoError(t, testDB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error)
	}
}

func seedQuestion(t *testing.T, title string) *models.Question {
	t.Helper()
	user := &models.User{
		Username: "asker-" + title,
		Email:    title + "@example.com",
		Password: "hashed",
	}
	require.NoError(t, testDB.Create(user).Error)
	q := &models.Question{Title: title, Content: "content", CreatorID: user.ID}
	require.NoError(t, testDB.Create(q).Error)
	return q
}

func visitsFor(t *testing.T, questionID int) int {
	t.Helper()
	var row models.QuestionVisits
	err := testDB.Where("question_id = ?", questionID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0
	}
	require.NoError(t, err)
	return row.Visits
}

func TestReloadReplacesCounts(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	q1 := seedQuestion(t, "one")
	q2 := seedQuestion(t, "two")

	r := NewReconciler(testDB, &fakeSource{pairs: map[int]int{
		q1.ID: 42,
		q2.ID: 7,
	}})
	require.NoError(t, r.Reload(ctx))

	assert.Equal(t, 42, visitsFor(t, q1.ID))
	assert.Equal(t, 7, visitsFor(t, q2.ID))

	// Counts are replaced wholesale, never added to.
	r = NewReconciler(testDB, &fakeSource{pairs: map[int]int{
		q1.ID: 50,
		q2.ID: 7,
	}})
	require.NoError(t, r.Reload(ctx))

	assert.Equal(t, 50, visitsFor(t, q1.ID))
	assert.Equal(t, 7, visitsFor(t, q2.ID))

	var total int64
	require.NoError(t, testDB.Model(&models.QuestionVisits{}).Count(&total).Error)
	assert.EqualValues(t, 2, total, "one row per question, no duplicates")
}

func TestReloadSkipsMissingQuestions(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	q := seedQuestion(t, "alive")

	r := NewReconciler(testDB, &fakeSource{pairs: map[int]int{
		q.ID:   10,
		999999: 100, // points at a question that no longer exists
	}})
	require.NoError(t, r.Reload(ctx))

	assert.Equal(t, 10, visitsFor(t, q.ID))

	var total int64
	require.NoError(t, testDB.Model(&models.QuestionVisits{}).Count(&total).Error)
	assert.EqualValues(t, 1, total)
}

func TestReloadRetriesForeignKeyViolationOnce(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	q := seedQuestion(t, "transient")

	r := NewReconciler(testDB, &fakeSource{pairs: map[int]int{q.ID: 33}})
	realInsert := r.insert
	var attempts int
	// First insert fails the way a concurrently deleted question does; the
	// retry goes through the real path and succeeds.
	r.insert = func(tx *gorm.DB, batch []pair) error {
		attempts++
		if attempts == 1 {
			return &pgconn.PgError{Code: "23503"}
		}
		return realInsert(tx, batch)
	}

	require.NoError(t, r.Reload(ctx))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 33, visitsFor(t, q.ID))
}

func TestReloadAbortsOnPersistentForeignKeyViolation(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	q := seedQuestion(t, "doomed")

	r := NewReconciler(testDB, &fakeSource{pairs: map[int]int{q.ID: 33}})
	var attempts int
	r.insert = func(*gorm.DB, []pair) error {
		attempts++
		return &pgconn.PgError{Code: "23503"}
	}

	err := r.Reload(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, attempts, "exactly one retry, then abort")

	// The outer transaction rolled back: nothing was persisted.
	var total int64
	require.NoError(t, testDB.Model(&models.QuestionVisits{}).Count(&total).Error)
	assert.EqualValues(t, 0, total)
}

func TestReloadPropagatesNonReferentialErrors(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	q := seedQuestion(t, "broken")

	r := NewReconciler(testDB, &fakeSource{pairs: map[int]int{q.ID: 1}})
	var attempts int
	r.insert = func(*gorm.DB, []pair) error {
		attempts++
		return errors.New("connection reset")
	}

	require.Error(t, r.Reload(ctx))
	assert.Equal(t, 1, attempts, "only referential failures earn a retry")
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, isForeignKeyViolation(gorm.ErrForeignKeyViolated))
	assert.True(t, isForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isForeignKeyViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})))
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isForeignKeyViolation(errors.New("plain")))
}

func TestReloadEmptySource(t *testing.T) {
	resetTables(t)

	r := NewReconciler(testDB, &fakeSource{})
	assert.NoError(t, r.Reload(context.Background()))
}
