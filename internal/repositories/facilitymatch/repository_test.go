package facilitymatch_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/juniper/internal/repositories/facility"
	"github.com/Ramsey-B/juniper/internal/repositories/facilitymatch"
	"github.com/Ramsey-B/juniper/internal/repositories/listitem"
	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/facilityid"
	"github.com/Ramsey-B/juniper/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "juniper"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func TestRepository_WriteDecision_SupersedesPriorRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	generator := facilityid.NewGenerator()
	facilities := facility.NewRepository(db, logger)
	listItems := listitem.NewRepository(db, logger)
	matches := facilitymatch.NewRepository(db, logger, generator)
	ctx := context.Background()

	facilityID, err := generator.Generate("BD", time.Now().UTC())
	require.NoError(t, err)
	_, err = facilities.Create(ctx, &models.Facility{
		FacilityID:  facilityID,
		Name:        "Supersession Mills " + uuid.New().String(),
		Address:     "12 Mill Rd, Dhaka",
		CountryCode: "BD",
	})
	require.NoError(t, err)

	staged, err := listItems.Upsert(ctx, &models.ListItem{
		SourceID:    "source-" + uuid.New().String(),
		RowIndex:    1,
		Name:        "Supersession Mills",
		Address:     "12 Mill Rd, Dhaka",
		CountryCode: "BD",
		Status:      models.ListItemStatusPending,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM facility_matches WHERE list_item_id = $1", staged.ID)
		_, _ = db.ExecContext(ctx, "DELETE FROM list_items WHERE id = $1", staged.ID)
		_, _ = db.ExecContext(ctx, "DELETE FROM facilities WHERE facility_id = $1", facilityID)
	})

	decision := &models.MatchDecision{
		ListItemID: staged.ID,
		FacilityID: &facilityID,
		Status:     models.MatchStatusAutomatic,
		Confidence: 0.92,
		Results: []models.MatchResult{
			{FacilityID: facilityID, Confidence: 0.92, Rank: 1},
		},
	}

	first, err := matches.WriteDecision(ctx, staged, decision)
	require.NoError(t, err)
	assert.True(t, first.IsActive)

	// Reprocessing the unchanged item yields an identical decision; the
	// prior record is superseded, not duplicated or mutated
	second, err := matches.WriteDecision(ctx, staged, decision)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.IsActive)
	assert.Equal(t, first.Status, second.Status)
	assert.InDelta(t, first.Confidence, second.Confidence, 0.0001)
	require.NotNil(t, second.FacilityID)
	assert.Equal(t, facilityID, *second.FacilityID)

	superseded, err := matches.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, superseded.IsActive)

	active, err := matches.GetActiveMatch(ctx, staged.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	item, err := listItems.Get(ctx, staged.ID)
	require.NoError(t, err)
	require.NotNil(t, item.FacilityID)
	assert.Equal(t, facilityID, *item.FacilityID)
	assert.Equal(t, models.ListItemStatusMatched, item.Status)
}

func TestRepository_WriteDecision_PendingKeepsItemUnassigned(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	generator := facilityid.NewGenerator()
	facilities := facility.NewRepository(db, logger)
	listItems := listitem.NewRepository(db, logger)
	matches := facilitymatch.NewRepository(db, logger, generator)
	ctx := context.Background()

	facilityID, err := generator.Generate("BD", time.Now().UTC())
	require.NoError(t, err)
	_, err = facilities.Create(ctx, &models.Facility{
		FacilityID:  facilityID,
		Name:        "Pending Mills " + uuid.New().String(),
		Address:     "12 Mill Rd, Dhaka",
		CountryCode: "BD",
	})
	require.NoError(t, err)

	staged, err := listItems.Upsert(ctx, &models.ListItem{
		SourceID:    "source-" + uuid.New().String(),
		RowIndex:    1,
		Name:        "Pending Mills",
		Address:     "12 Mill Rd, Dhaka",
		CountryCode: "BD",
		Status:      models.ListItemStatusPending,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM facility_matches WHERE list_item_id = $1", staged.ID)
		_, _ = db.ExecContext(ctx, "DELETE FROM list_items WHERE id = $1", staged.ID)
		_, _ = db.ExecContext(ctx, "DELETE FROM facilities WHERE facility_id = $1", facilityID)
	})

	decision := &models.MatchDecision{
		ListItemID: staged.ID,
		FacilityID: &facilityID,
		Status:     models.MatchStatusPending,
		Confidence: 0.65,
		Results: []models.MatchResult{
			{FacilityID: facilityID, Confidence: 0.65, Rank: 1},
		},
	}

	written, err := matches.WriteDecision(ctx, staged, decision)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusPending, written.Status)

	item, err := listItems.Get(ctx, staged.ID)
	require.NoError(t, err)
	assert.Nil(t, item.FacilityID, "a pending suggestion must not assign the facility")
	assert.Equal(t, models.ListItemStatusPending, item.Status)
}
