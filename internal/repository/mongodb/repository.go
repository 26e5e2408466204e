package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/inhapress/stockledger/internal/domain/models"
)

// ErrReportNotFound is returned when no archive exists for a month.
var ErrReportNotFound = errors.New("monthly report not found")

// Repository defines the interface for report storage.
type Repository interface {
	SaveMonthlyReport(ctx context.Context, report models.MonthlyReport) error
	MonthlyReport(ctx context.Context, month string) (models.MonthlyReport, error)
}

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client   *mongo.Client
	dbName   string
	collName string
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client:   client,
		dbName:   dbName,
		collName: "monthly_reports",
	}, nil
}

// SaveMonthlyReport stores the report, replacing an earlier archive of the
// same month.
func (r *MongoDBRepository) SaveMonthlyReport(ctx context.Context, report models.MonthlyReport) error {
	collection := r.client.Database(r.dbName).Collection(r.collName)
	_, err := collection.ReplaceOne(ctx, bson.M{"month": report.Month}, report, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert monthly report %s: %w", report.Month, err)
	}
	return nil
}

// MonthlyReport loads the archived report of month.
func (r *MongoDBRepository) MonthlyReport(ctx context.Context, month string) (models.MonthlyReport, error) {
	collection := r.client.Database(r.dbName).Collection(r.collName)

	var report models.MonthlyReport
	err := collection.FindOne(ctx, bson.M{"month": month}).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.MonthlyReport{}, fmt.Errorf("%w: %s", ErrReportNotFound, month)
	}
	if err != nil {
		return models.MonthlyReport{}, fmt.Errorf("failed to load monthly report %s: %w", month, err)
	}
	return report, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
