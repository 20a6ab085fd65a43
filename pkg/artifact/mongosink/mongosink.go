// Package mongosink publishes artifacts to MongoDB.
//
// Staging inserts rows into the "<kind>_rows" collection tagged with a fresh
// staging id. Committing upserts the header document into the "artifacts"
// collection, pointing at that staging id. Readers look
// up the header first and fetch rows by its staging id, so a partially
// written artifact is never visible. The rows of a replaced or failed
// publication are deleted.
package mongosink

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/errors"
)

// HeaderCollection holds one document per published artifact.
const HeaderCollection = "artifacts"

// batchSize is the number of rows per InsertMany call.
const batchSize = 5000

// Header is the document stored in HeaderCollection.
type Header struct {
	Key        string              `bson:"_id"`
	Staging    string              `bson:"staging"`
	Provenance artifact.Provenance `bson:"provenance"`
	Published  time.Time           `bson:"published_at"`
}

// Sink writes artifacts into one database.
type Sink struct {
	client *mongo.Client
	db     *mongo.Database
	owns   bool
}

// Connect dials uri and returns a sink over database.
func Connect(ctx context.Context, uri, database string) (*Sink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "ping mongodb")
	}
	s := New(client.Database(database))
	s.client = client
	s.owns = true
	return s, nil
}

// New wraps an existing database handle. Close will not disconnect it.
func New(db *mongo.Database) *Sink {
	return &Sink{client: db.Client(), db: db}
}

// RowCollection returns the collection name for rows of kind.
func RowCollection(kind artifact.Kind) string {
	return string(kind) + "_rows"
}

// Publish stores a and returns its key.
func (s *Sink) Publish(ctx context.Context, a *artifact.Artifact) (string, error) {
	return artifact.Publish(ctx, s, a)
}

// Stage inserts the rows of a under a fresh staging id. Nothing references
// them until Commit upserts the header.
func (s *Sink) Stage(ctx context.Context, a *artifact.Artifact) (artifact.Staged, error) {
	if err := errors.ValidateRunTag(a.Provenance.RunTag); err != nil {
		return nil, err
	}
	st := &staged{
		sink:       s,
		key:        artifact.Key(a.Provenance),
		staging:    uuid.NewString(),
		provenance: a.Provenance,
		rows:       s.db.Collection(RowCollection(a.Provenance.Kind)),
	}
	if err := s.insertRows(ctx, st.rows, st.staging, a); err != nil {
		st.Discard()
		return nil, err
	}
	return st, nil
}

type staged struct {
	sink       *Sink
	key        string
	staging    string
	provenance artifact.Provenance
	rows       *mongo.Collection
	done       bool
}

func (st *staged) Location() string { return st.key }

// Commit points the header at the staged rows and drops the rows it
// replaced.
func (st *staged) Commit(ctx context.Context) error {
	if st.done {
		return errors.New(errors.ErrCodeInternal, "%s already committed or discarded", st.key)
	}
	headers := st.sink.db.Collection(HeaderCollection)
	filter := bson.D{{Key: "_id", Value: st.key}}

	var prev Header
	err := headers.FindOne(ctx, filter).Decode(&prev)
	if err != nil && err != mongo.ErrNoDocuments {
		return errors.Wrap(errors.ErrCodeInternal, err, "read header %s", st.key)
	}

	h := Header{Key: st.key, Staging: st.staging, Provenance: st.provenance, Published: time.Now().UTC()}
	if _, err := headers.ReplaceOne(ctx, filter, h, options.Replace().SetUpsert(true)); err != nil {
		if ctx.Err() != nil {
			return errors.Cancelled(ctx.Err(), "publish")
		}
		return errors.Wrap(errors.ErrCodeInternal, err, "write header %s", st.key)
	}
	st.done = true
	if prev.Staging != "" {
		st.sink.dropStaging(st.rows, prev.Staging)
	}
	return nil
}

func (st *staged) Discard() {
	if st.done {
		return
	}
	st.done = true
	st.sink.dropStaging(st.rows, st.staging)
}

func (s *Sink) insertRows(ctx context.Context, coll *mongo.Collection, staging string, a *artifact.Artifact) error {
	if a.Rows == nil {
		return nil
	}
	batch := make([]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err, "publish")
		}
		if _, err := coll.InsertMany(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return errors.Cancelled(ctx.Err(), "publish")
			}
			return errors.Wrap(errors.ErrCodeInternal, err, "insert rows")
		}
		batch = batch[:0]
		return nil
	}

	seq := 0
	for row := range a.Rows {
		batch = append(batch, bson.D{
			{Key: "staging", Value: staging},
			{Key: "seq", Value: seq},
			{Key: "row", Value: row},
		})
		seq++
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// dropStaging deletes rows of one staging id. It runs detached from the
// request context so cleanup still happens after cancellation.
func (s *Sink) dropStaging(coll *mongo.Collection, staging string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, _ = coll.DeleteMany(ctx, bson.D{{Key: "staging", Value: staging}})
}

// Close disconnects the client if the sink created it.
func (s *Sink) Close(ctx context.Context) error {
	if !s.owns {
		return nil
	}
	return s.client.Disconnect(ctx)
}

var _ artifact.Publisher = (*Sink)(nil)
