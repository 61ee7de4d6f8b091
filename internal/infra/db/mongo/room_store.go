package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

// RoomStore keeps rooms in the rooms collection. Claim is a single conditional
// update, so it is atomic across service instances.
type RoomStore struct {
	col *mongo.Collection
}

func NewRoomStore(ctx context.Context, db *mongo.Database) (*RoomStore, error) {
	col := db.Collection("rooms")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "host.id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "booked", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return &RoomStore{col: col}, nil
}

func (s *RoomStore) Get(ctx context.Context, id rooms.RoomID) (*rooms.Room, error) {
	var doc roomDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rooms.ErrNotFound
		}
		return nil, err
	}
	return doc.toRoom(), nil
}

func (s *RoomStore) List(ctx context.Context, filter rooms.Filter) ([]*rooms.Room, error) {
	filter = filter.Normalized()
	query := bson.M{}
	if filter.HostID != "" {
		query["host.id"] = string(filter.HostID)
	}
	if filter.Available != nil {
		query["booked"] = !*filter.Available
	}
	if filter.Category != "" {
		query["category"] = bson.M{"$regex": "^" + regexp.QuoteMeta(filter.Category) + "$", "$options": "i"}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	cur, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*rooms.Room, 0)
	for cur.Next(ctx) {
		var doc roomDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRoom())
	}
	return out, cur.Err()
}

// Save upserts the descriptive fields. The booked flag is only written on insert.
func (s *RoomStore) Save(ctx context.Context, room *rooms.Room) error {
	if room == nil || room.ID == "" {
		return rooms.ErrIDRequired
	}
	doc := newRoomDocument(room)
	now := time.Now().UTC()
	created := doc.CreatedAt
	if created.IsZero() {
		created = now
	}
	update := bson.M{
		"$set": bson.M{
			"host":       doc.Host,
			"title":      doc.Title,
			"location":   doc.Location,
			"category":   doc.Category,
			"price":      doc.Price,
			"attributes": doc.Attributes,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"booked":     doc.Booked,
			"created_at": created,
		},
	}
	_, err := s.col.UpdateByID(ctx, doc.ID, update, options.Update().SetUpsert(true))
	return err
}

func (s *RoomStore) Claim(ctx context.Context, id rooms.RoomID) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": string(id), "booked": false},
		bson.M{"$set": bson.M{"booked": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	n, err := s.col.CountDocuments(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, rooms.ErrNotFound
	}
	return false, nil
}

func (s *RoomStore) Release(ctx context.Context, id rooms.RoomID) error {
	res, err := s.col.UpdateByID(ctx, string(id), bson.M{"$set": bson.M{"booked": false, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return rooms.ErrNotFound
	}
	return nil
}

type hostDocument struct {
	ID    string `bson:"id"`
	Email string `bson:"email"`
	Name  string `bson:"name"`
}

type roomDocument struct {
	ID         string         `bson:"_id"`
	Host       hostDocument   `bson:"host"`
	Title      string         `bson:"title"`
	Location   string         `bson:"location"`
	Category   string         `bson:"category"`
	Price      money.Money    `bson:"price"`
	Booked     bool           `bson:"booked"`
	Attributes map[string]any `bson:"attributes,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

func newRoomDocument(r *rooms.Room) roomDocument {
	return roomDocument{
		ID:         string(r.ID),
		Host:       hostDocument{ID: string(r.Host.ID), Email: r.Host.Email, Name: r.Host.Name},
		Title:      r.Title,
		Location:   r.Location,
		Category:   r.Category,
		Price:      r.Price,
		Booked:     r.Booked,
		Attributes: r.Attributes,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (d roomDocument) toRoom() *rooms.Room {
	return &rooms.Room{
		ID:         rooms.RoomID(d.ID),
		Host:       rooms.Host{ID: rooms.HostID(d.Host.ID), Email: d.Host.Email, Name: d.Host.Name},
		Title:      d.Title,
		Location:   d.Location,
		Category:   d.Category,
		Price:      d.Price,
		Booked:     d.Booked,
		Attributes: d.Attributes,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

var _ rooms.Store = (*RoomStore)(nil)
