package database

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hyxhhh1013/Myproject-sub000/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitGormDB("sqlite", filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, AutoMigrateModels(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?"+sqliteDefaults, SQLiteDSN("a.db"))
	assert.Equal(t, "a.db?mode=ro", SQLiteDSN("a.db?mode=ro"))
}

func TestPhotoOrderBy(t *testing.T) {
	assert.Equal(t, "photos.size DESC", PhotoOrderBy(SortSizeDesc)[0])
	assert.Equal(t, PhotoOrderBy(SortDefault), PhotoOrderBy("bogus"))
	assert.False(t, IsValidSortOrder("bogus"))
	assert.True(t, IsValidSortOrder(SortDateAsc))
}

func TestAllocateRangeSequential(t *testing.T) {
	db := openTestDB(t)

	var first, second int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = AllocateRange(tx, PhotoOrderSequence, 3)
		return err
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		second, err = AllocateRange(tx, PhotoOrderSequence, 2)
		return err
	}))

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(4), second)

	_, err := AllocateRange(db, PhotoOrderSequence, 0)
	assert.Error(t, err)
}

func TestAllocateRangeSeedsMissingSequence(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Where("1 = 1").Delete(&models.Sequence{}).Error)

	var first int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = AllocateRange(tx, PhotoOrderSequence, 2)
		return err
	}))
	assert.Equal(t, int64(1), first)
}

func TestAllocateRangeConcurrentNoOverlap(t *testing.T) {
	db := openTestDB(t)

	const callers, size = 8, 5
	starts := make(chan int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				start, err := AllocateRange(tx, PhotoOrderSequence, size)
				if err == nil {
					starts <- start
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(starts)

	seen := make(map[int64]bool)
	for start := range starts {
		for v := start; v < start+size; v++ {
			require.False(t, seen[v], "value %d allocated twice", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, callers*size)
}

func TestCountsByKey(t *testing.T) {
	db := openTestDB(t)
	a := models.PhotoCategory{Name: "A", Slug: "a"}
	b := models.PhotoCategory{Name: "B", Slug: "b"}
	require.NoError(t, db.Create(&a).Error)
	require.NoError(t, db.Create(&b).Error)
	for _, categoryID := range []uint{a.ID, a.ID, b.ID} {
		require.NoError(t, db.Create(&models.Photo{
			Title:         "p",
			ImagePath:     "originals/p.jpg",
			ThumbnailPath: "thumbnails/p-thumbnail.jpg",
			TakenAt:       time.Now(),
			CategoryID:    categoryID,
		}).Error)
	}

	counts, err := CountsByKey(db, "photos", "category_id")
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{a.ID: 2, b.ID: 1}, counts)
}

func TestDialectFixups(t *testing.T) {
	assert.Empty(t, dialectFixups("sqlite"))

	stmts := dialectFixups("mysql")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "COLLATE utf8mb4_bin")
	assert.Contains(t, stmts[0], "tags")
}

func TestSQLiteLowerFoldsUnicode(t *testing.T) {
	db := openTestDB(t)

	var lowered string
	require.NoError(t, db.Raw("SELECT LOWER(?)", "ÉCOLE Été").Scan(&lowered).Error)
	assert.Equal(t, "école été", lowered)

	var null *string
	require.NoError(t, db.Raw("SELECT LOWER(NULL)").Scan(&null).Error)
	assert.Nil(t, null)
}
