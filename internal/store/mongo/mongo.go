// Package mongo implements store.Store on MongoDB Atlas with $vectorSearch.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/store"
)

const (
	vectorPath            = "average_vector"
	defaultDatabase       = "candidate_matcher"
	defaultJobs           = "jobs"
	defaultCandidates     = "candidates"
	defaultVectorIndex    = "average_vector_index"
	defaultConnectTimeout = 10 * time.Second
	minNumCandidates      = 100
	maxNumCandidates      = 10000
	numCandidatesFactor   = 10
)

// Config describes the Mongo deployment.
type Config struct {
	URI                  string
	Database             string
	JobsCollection       string
	CandidatesCollection string
	VectorIndex          string
	// Dimensions is used when creating the vector search index.
	Dimensions        int
	CreateVectorIndex bool
}

// Store keeps jobs and candidates in two collections of one database.
type Store struct {
	client      *mongo.Client
	collections map[domain.Kind]*mongo.Collection
	vectorIndex string
	logger      *zap.Logger
}

type chunkRecord struct {
	Position int       `bson:"position"`
	Text     string    `bson:"text"`
	Vector   []float32 `bson:"vector,omitempty"`
}

type attributesRecord struct {
	Title    string         `bson:"title,omitempty"`
	Company  string         `bson:"company,omitempty"`
	Location string         `bson:"location,omitempty"`
	Name     string         `bson:"name,omitempty"`
	Source   string         `bson:"source,omitempty"`
	Skills   []string       `bson:"skills,omitempty"`
	Extra    map[string]any `bson:"extra,omitempty"`
}

type documentRecord struct {
	ID            string           `bson:"_id"`
	Kind          string           `bson:"kind"`
	Attributes    attributesRecord `bson:"attributes"`
	RawText       string           `bson:"raw_text"`
	Chunks        []chunkRecord    `bson:"chunks,omitempty"`
	AverageVector []float32        `bson:"average_vector,omitempty"`
	IndexedAt     time.Time        `bson:"indexed_at"`
}

// Open connects, pings and prepares indexes.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("%w: mongo uri is required", domain.ErrInvalidConfiguration)
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to mongodb: %w", domain.ErrCollaboratorUnavailable, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: pinging mongodb: %w", domain.ErrCollaboratorUnavailable, err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client: client,
		collections: map[domain.Kind]*mongo.Collection{
			domain.KindJob:       db.Collection(cfg.JobsCollection),
			domain.KindCandidate: db.Collection(cfg.CandidatesCollection),
		},
		vectorIndex: cfg.VectorIndex,
		logger:      logger,
	}

	if err := s.ensureIndexes(ctx, cfg); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Debug("mongo store ready",
		zap.String("database", cfg.Database),
		zap.String("vector_index", cfg.VectorIndex),
	)
	return s, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.JobsCollection == "" {
		cfg.JobsCollection = defaultJobs
	}
	if cfg.CandidatesCollection == "" {
		cfg.CandidatesCollection = defaultCandidates
	}
	if cfg.VectorIndex == "" {
		cfg.VectorIndex = defaultVectorIndex
	}
	return cfg
}

func attributeIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "attributes.company", Value: 1}}},
		{Keys: bson.D{{Key: "attributes.location", Value: 1}}},
		{Keys: bson.D{{Key: "attributes.skills", Value: 1}}},
	}
}

func vectorIndexDefinition(dimensions int) bson.D {
	return bson.D{{Key: "fields", Value: bson.A{
		bson.D{
			{Key: "type", Value: "vector"},
			{Key: "path", Value: vectorPath},
			{Key: "numDimensions", Value: dimensions},
			{Key: "similarity", Value: "cosine"},
		},
	}}}
}

func (s *Store) ensureIndexes(ctx context.Context, cfg Config) error {
	for kind, coll := range s.collections {
		if _, err := coll.Indexes().CreateMany(ctx, attributeIndexes()); err != nil {
			return fmt.Errorf("%w: creating %s indexes: %w", domain.ErrCollaboratorUnavailable, kind, err)
		}

		if !cfg.CreateVectorIndex {
			continue
		}
		if cfg.Dimensions <= 0 {
			return fmt.Errorf("%w: vector index creation needs embedding dimensions", domain.ErrInvalidConfiguration)
		}

		model := mongo.SearchIndexModel{
			Definition: vectorIndexDefinition(cfg.Dimensions),
			Options:    options.SearchIndexes().SetName(cfg.VectorIndex).SetType("vectorSearch"),
		}
		if _, err := coll.SearchIndexes().CreateOne(ctx, model); err != nil {
			// Atlas rejects duplicates; an existing index is fine.
			s.logger.Warn("vector search index not created",
				zap.String("collection", coll.Name()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Store) collection(kind domain.Kind) (*mongo.Collection, error) {
	coll, ok := s.collections[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown document kind %q", domain.ErrInvalidInput, kind)
	}
	return coll, nil
}

// Upsert replaces the document with the same id.
func (s *Store) Upsert(ctx context.Context, doc domain.Document) error {
	if err := store.ValidateDocument(doc); err != nil {
		return err
	}
	coll, err := s.collection(doc.Kind)
	if err != nil {
		return err
	}

	_, err = coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, toRecord(doc), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: upserting %s %q: %w", domain.ErrCollaboratorUnavailable, doc.Kind, doc.ID, err)
	}
	return nil
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, kind domain.Kind, id string) (domain.Document, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return domain.Document{}, err
	}

	var rec documentRecord
	err = coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Document{}, fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: loading %s %q: %w", domain.ErrCollaboratorUnavailable, kind, id, err)
	}
	return fromRecord(rec), nil
}

// VectorSearch runs an approximate nearest-neighbour query through $vectorSearch.
func (s *Store) VectorSearch(ctx context.Context, kind domain.Kind, vector domain.Vector, topN int) ([]store.Hit, error) {
	if topN <= 0 || len(vector) == 0 {
		return nil, nil
	}
	coll, err := s.collection(kind)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Aggregate(ctx, vectorSearchPipeline(s.vectorIndex, vector, topN))
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", domain.ErrCollaboratorUnavailable, err)
	}
	defer cursor.Close(ctx)

	var hits []store.Hit
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("%w: reading vector search results: %w", domain.ErrCollaboratorUnavailable, err)
	}

	store.SortHits(hits)
	return hits, nil
}

// FindByAttributes returns ids of documents with any of the labels in field.
func (s *Store) FindByAttributes(ctx context.Context, kind domain.Kind, filter store.AttributeFilter) ([]string, error) {
	labels := domain.NormalizeLabels(filter.AnyOf)
	if len(labels) == 0 {
		return nil, nil
	}
	coll, err := s.collection(kind)
	if err != nil {
		return nil, err
	}

	query := bson.D{{Key: attributePath(filter.Field), Value: bson.D{{Key: "$in", Value: labels}}}}
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: attribute query: %w", domain.ErrCollaboratorUnavailable, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: reading attribute query results: %w", domain.ErrCollaboratorUnavailable, err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func vectorSearchPipeline(index string, vector domain.Vector, topN int) mongo.Pipeline {
	numCandidates := topN * numCandidatesFactor
	numCandidates = max(numCandidates, minNumCandidates)
	numCandidates = min(numCandidates, maxNumCandidates)

	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: vectorPath},
			{Key: "queryVector", Value: []float32(vector)},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: topN},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func attributePath(field string) string {
	field = strings.ToLower(strings.TrimSpace(field))
	switch field {
	case "", domain.SkillsField:
		return "attributes.skills"
	case "title", "company", "location", "name", "source":
		return "attributes." + field
	default:
		return "attributes.extra." + field
	}
}

func toRecord(doc domain.Document) documentRecord {
	rec := documentRecord{
		ID:   doc.ID,
		Kind: string(doc.Kind),
		Attributes: attributesRecord{
			Title:    doc.Attributes.Title,
			Company:  doc.Attributes.Company,
			Location: doc.Attributes.Location,
			Name:     doc.Attributes.Name,
			Source:   doc.Attributes.Source,
			Skills:   doc.Attributes.Skills,
			Extra:    doc.Attributes.Extra,
		},
		RawText:       doc.RawText,
		AverageVector: doc.AverageVector,
		IndexedAt:     doc.IndexedAt,
	}
	for _, c := range doc.Chunks {
		rec.Chunks = append(rec.Chunks, chunkRecord{Position: c.Position, Text: c.Text, Vector: c.Vector})
	}
	return rec
}

func fromRecord(rec documentRecord) domain.Document {
	doc := domain.Document{
		ID:   rec.ID,
		Kind: domain.Kind(rec.Kind),
		Attributes: domain.Attributes{
			Title:    rec.Attributes.Title,
			Company:  rec.Attributes.Company,
			Location: rec.Attributes.Location,
			Name:     rec.Attributes.Name,
			Source:   rec.Attributes.Source,
			Skills:   rec.Attributes.Skills,
			Extra:    rec.Attributes.Extra,
		},
		RawText:       rec.RawText,
		AverageVector: rec.AverageVector,
		IndexedAt:     rec.IndexedAt,
	}
	for _, c := range rec.Chunks {
		doc.Chunks = append(doc.Chunks, domain.Chunk{Position: c.Position, Text: c.Text, Vector: c.Vector})
	}
	return doc
}

var _ store.Store = (*Store)(nil)
