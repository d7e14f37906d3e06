package database

import (
	"context"
	"fmt"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoStore struct {
	db        *mongo.Database
	equity    *mongoCollection
	futures   *mongoCollection
	files     *mongo.Collection
	writeMode string
}

func ConnectMongo(ctx context.Context, cfg config.StoreConfig) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI()))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping mongo at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return NewMongoStore(client.Database(cfg.Database), cfg), nil
}

func NewMongoStore(db *mongo.Database, cfg config.StoreConfig) *MongoStore {
	return &MongoStore{
		db:        db,
		equity:    &mongoCollection{coll: db.Collection(cfg.EquityCollection), writeMode: cfg.WriteMode},
		futures:   &mongoCollection{coll: db.Collection(cfg.FuturesCollection), writeMode: cfg.WriteMode},
		files:     db.Collection(cfg.FileCollection),
		writeMode: cfg.WriteMode,
	}
}

func (s *MongoStore) Collection(kind models.RecordKind) Collection {
	switch kind {
	case models.KindEquity:
		return s.equity
	case models.KindFutures:
		return s.futures
	default:
		return nil
	}
}

func (s *MongoStore) InsertFileRecord(ctx context.Context, record *models.FileRecord) error {
	doc := bson.D{
		{Key: "run_id", Value: record.RunID},
		{Key: "file_name", Value: record.FileName},
		{Key: "kind", Value: string(record.Kind)},
		{Key: "checksum", Value: record.Checksum},
		{Key: "status", Value: record.Status},
		{Key: "eligible", Value: record.Eligible},
		{Key: "persisted", Value: record.Persisted},
		{Key: "skipped", Value: record.Skipped},
		{Key: "errors", Value: record.Errors},
		{Key: "processed_at", Value: record.ProcessedAt},
	}

	if _, err := s.files.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("error inserting file record: %w", err)
	}
	return nil
}

// EnsureSchema creates the lookup indexes. row_key is only unique in upsert mode, plain insert
// mode keeps accepting duplicates from reprocessed files.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	uniqueKey := s.writeMode == config.WriteModeUpsert

	recordIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "row_key", Value: 1}}, Options: options.Index().SetUnique(uniqueKey)},
		{Keys: bson.D{{Key: "symbol", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	for _, coll := range []*mongo.Collection{s.equity.coll, s.futures.coll} {
		if _, err := coll.Indexes().CreateMany(ctx, recordIndexes); err != nil {
			return fmt.Errorf("error creating indexes on %s: %w", coll.Name(), err)
		}
	}

	fileIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "file_name", Value: 1}}},
		{Keys: bson.D{{Key: "checksum", Value: 1}}},
	}
	if _, err := s.files.Indexes().CreateMany(ctx, fileIndexes); err != nil {
		return fmt.Errorf("error creating indexes on %s: %w", s.files.Name(), err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

type mongoCollection struct {
	coll      *mongo.Collection
	writeMode string
}

func (c *mongoCollection) Insert(ctx context.Context, record models.Record) (string, error) {
	doc, err := recordDocument(record)
	if err != nil {
		return "", err
	}

	if c.writeMode == config.WriteModeUpsert {
		res, err := c.coll.ReplaceOne(ctx, bson.D{{Key: "row_key", Value: record.Key()}}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return "", fmt.Errorf("error upserting into %s: %w", c.coll.Name(), err)
		}
		if res.UpsertedID != nil {
			return idString(res.UpsertedID), nil
		}
		if res.MatchedCount > 0 {
			return record.Key(), nil
		}
		return "", fmt.Errorf("no document written to %s for row_key %s", c.coll.Name(), record.Key())
	}

	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("error inserting into %s: %w", c.coll.Name(), err)
	}
	return idString(res.InsertedID), nil
}

func idString(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

// recordDocument maps a record onto its stored document. Prices are kept exact as Decimal128.
func recordDocument(record models.Record) (bson.D, error) {
	switch r := record.(type) {
	case *models.EquityRecord:
		prices, err := decimals(r.Open, r.High, r.Low, r.Close)
		if err != nil {
			return nil, err
		}
		return bson.D{
			{Key: "symbol", Value: r.Symbol},
			{Key: "series", Value: r.Series},
			{Key: "open", Value: prices[0]},
			{Key: "high", Value: prices[1]},
			{Key: "low", Value: prices[2]},
			{Key: "close", Value: prices[3]},
			{Key: "total_traded_quantity", Value: r.TotalTradedQuantity},
			{Key: "timestamp", Value: r.Timestamp},
			{Key: "total_trades", Value: r.TotalTrades},
			{Key: "row_key", Value: r.RowKey},
		}, nil
	case *models.FuturesRecord:
		values, err := decimals(r.Open, r.High, r.Low, r.Close, r.Contracts, r.OpenInterest, r.ChangeInOpenInterest)
		if err != nil {
			return nil, err
		}
		return bson.D{
			{Key: "instrument", Value: r.Instrument},
			{Key: "symbol", Value: r.Symbol},
			{Key: "expiry_date", Value: r.ExpiryDate},
			{Key: "open", Value: values[0]},
			{Key: "high", Value: values[1]},
			{Key: "low", Value: values[2]},
			{Key: "close", Value: values[3]},
			{Key: "contracts", Value: values[4]},
			{Key: "open_interest", Value: values[5]},
			{Key: "change_in_open_interest", Value: values[6]},
			{Key: "timestamp", Value: r.Timestamp},
			{Key: "row_key", Value: r.RowKey},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported record type %T", record)
	}
}

func decimals(values ...decimal.Decimal) ([]primitive.Decimal128, error) {
	converted := make([]primitive.Decimal128, len(values))
	for i, value := range values {
		d, err := primitive.ParseDecimal128(value.String())
		if err != nil {
			return nil, fmt.Errorf("error converting %s to decimal128: %w", value.String(), err)
		}
		converted[i] = d
	}
	return converted, nil
}
