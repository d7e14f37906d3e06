package database

import (
	"context"
	"testing"
	"time"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func storeConfig(writeMode string) config.StoreConfig {
	return config.StoreConfig{
		Driver:            config.DriverMongo,
		WriteMode:         writeMode,
		Database:          "stocks",
		EquityCollection:  "equity",
		FuturesCollection: "futures",
		FileCollection:    "file_records",
	}
}

func sampleEquity() *models.EquityRecord {
	return &models.EquityRecord{
		Symbol:              "TCS",
		Series:              "EQ",
		Open:                decimal.RequireFromString("2170.05"),
		High:                decimal.RequireFromString("2190"),
		Low:                 decimal.RequireFromString("2155.1"),
		Close:               decimal.RequireFromString("2180.45"),
		TotalTradedQuantity: 1534871,
		Timestamp:           time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		TotalTrades:         64211,
		RowKey:              "a1b2c3d4e5f60718",
	}
}

func sampleFutures() *models.FuturesRecord {
	return &models.FuturesRecord{
		Instrument:           "FUTSTK",
		Symbol:               "INFY",
		ExpiryDate:           time.Date(2020, 1, 30, 0, 0, 0, 0, time.UTC),
		Open:                 decimal.RequireFromString("735.5"),
		High:                 decimal.RequireFromString("742.9"),
		Low:                  decimal.RequireFromString("733.1"),
		Close:                decimal.RequireFromString("740.25"),
		Contracts:            decimal.RequireFromString("5321"),
		OpenInterest:         decimal.RequireFromString("28473600"),
		ChangeInOpenInterest: decimal.RequireFromString("-412800"),
		Timestamp:            time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		RowKey:               "0f1e2d3c4b5a6978",
	}
}

func TestRecordDocument(t *testing.T) {
	t.Run("equity", func(t *testing.T) {
		doc, err := recordDocument(sampleEquity())
		require.NoError(t, err)

		m := doc.Map()
		assert.Equal(t, "TCS", m["symbol"])
		assert.Equal(t, "EQ", m["series"])
		assert.Equal(t, "2180.45", m["close"].(primitive.Decimal128).String())
		assert.Equal(t, int64(1534871), m["total_traded_quantity"])
		assert.Equal(t, "a1b2c3d4e5f60718", m["row_key"])
	})

	t.Run("futures", func(t *testing.T) {
		doc, err := recordDocument(sampleFutures())
		require.NoError(t, err)

		m := doc.Map()
		assert.Equal(t, "FUTSTK", m["instrument"])
		assert.Equal(t, "-412800", m["change_in_open_interest"].(primitive.Decimal128).String())
		assert.Equal(t, time.Date(2020, 1, 30, 0, 0, 0, 0, time.UTC), m["expiry_date"])
	})
}

func TestMongoStore_Insert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert mode returns generated id", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, storeConfig(config.WriteModeInsert))
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		id, err := store.Collection(models.KindEquity).Insert(context.Background(), sampleEquity())
		require.NoError(mt, err)
		assert.Len(mt, id, 24)
	})

	mt.Run("insert mode surfaces write errors", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, storeConfig(config.WriteModeInsert))
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		id, err := store.Collection(models.KindFutures).Insert(context.Background(), sampleFutures())
		require.Error(mt, err)
		assert.True(mt, mongo.IsDuplicateKeyError(err))
		assert.Empty(mt, id)
	})

	mt.Run("upsert mode inserting a new row", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, storeConfig(config.WriteModeUpsert))
		upsertedID := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: upsertedID}}}},
		))

		id, err := store.Collection(models.KindEquity).Insert(context.Background(), sampleEquity())
		require.NoError(mt, err)
		assert.Equal(mt, upsertedID.Hex(), id)
	})

	mt.Run("upsert mode replacing an existing row", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, storeConfig(config.WriteModeUpsert))
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		id, err := store.Collection(models.KindEquity).Insert(context.Background(), sampleEquity())
		require.NoError(mt, err)
		assert.Equal(mt, "a1b2c3d4e5f60718", id)
	})

	mt.Run("upsert mode writing nothing is an error", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, storeConfig(config.WriteModeUpsert))
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		id, err := store.Collection(models.KindEquity).Insert(context.Background(), sampleEquity())
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "no document written")
		assert.Empty(mt, id)
	})

	mt.Run("file record", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, storeConfig(config.WriteModeUpsert))
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := store.InsertFileRecord(context.Background(), &models.FileRecord{
			RunID:       "9d7c0a52-2d0c-4bc4-8a3f-1f0c7f1f4f11",
			FileName:    "01JAN2020_NSE.csv",
			Kind:        models.KindEquity,
			Status:      models.FILE_STATUS_DONE,
			Eligible:    4,
			Persisted:   4,
			ProcessedAt: time.Now(),
		})
		assert.NoError(mt, err)
	})

	mt.Run("unknown kind has no collection", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, storeConfig(config.WriteModeUpsert))
		assert.Nil(mt, store.Collection(models.RecordKind("options")))
	})
}
