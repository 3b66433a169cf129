package attendance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const selectionSlotID = "current"

// MongoRepository persists attendance data in MongoDB collections.
type MongoRepository struct {
	users        *mongo.Collection
	unregistered *mongo.Collection
	subjects     *mongo.Collection
	records      *mongo.Collection
	selection    *mongo.Collection
}

// NewMongoRepository binds the repository to a database.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		users:        db.Collection("users"),
		unregistered: db.Collection("unregisteredusers"),
		subjects:     db.Collection("subjects"),
		records:      db.Collection("attendancerecords"),
		selection:    db.Collection("selectedsubjects"),
	}
}

// EnsureIndexes creates the unique and lookup indexes. Optional identifiers
// use sparse unique indexes so documents without them do not collide.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	uniqueSparse := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)}
	}
	plain := func(field string, order int) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: order}}}
	}

	specs := []struct {
		coll    *mongo.Collection
		indexes []mongo.IndexModel
	}{
		{r.users, []mongo.IndexModel{uniqueSparse("rfid"), uniqueSparse("fingerId"), uniqueSparse("employeeId"), uniqueSparse("email"), plain("attendance", -1)}},
		{r.unregistered, []mongo.IndexModel{uniqueSparse("rfid"), uniqueSparse("fingerId"), plain("lastSeen", -1)}},
		{r.subjects, []mongo.IndexModel{{Keys: bson.D{{Key: "courseCode", Value: 1}}, Options: options.Index().SetUnique(true)}}},
		{r.records, []mongo.IndexModel{plain("timestamp", -1), plain("userId", 1), plain("rfid", 1), plain("fingerId", 1)}},
	}
	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateMany(ctx, spec.indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", spec.coll.Name(), err)
		}
	}
	return nil
}

func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func mapMongoErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOneOptions) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deleteOne(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func containsRegex(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

// setOrUnset writes a field when non-empty and removes it otherwise, so
// sparse unique indexes never see an empty string.
func setOrUnset(set, unset bson.M, field, value string) {
	if value == "" {
		unset[field] = ""
		return
	}
	set[field] = value
}

var newestUsers = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}

// --- users ---

func (r *MongoRepository) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = mongoNow()
	u.UpdatedAt = u.CreatedAt
	if _, err := r.users.InsertOne(ctx, u); err != nil {
		return User{}, mapMongoErr(err)
	}
	return u, nil
}

func (r *MongoRepository) GetUser(ctx context.Context, id string) (*User, error) {
	return findOne[User](ctx, r.users, bson.M{"_id": id})
}

func (r *MongoRepository) FindUser(ctx context.Context, m UserMatch) (*User, error) {
	if m.empty() {
		return nil, nil
	}
	or := bson.A{}
	for field, val := range map[string]string{"rfid": m.RFID, "fingerId": m.FingerID, "employeeId": m.EmployeeID, "email": m.Email} {
		if val != "" {
			or = append(or, bson.M{field: val})
		}
	}
	filter := bson.M{"$or": or}
	if m.ExcludeID != "" {
		filter["_id"] = bson.M{"$ne": m.ExcludeID}
	}
	return findOne[User](ctx, r.users, filter, options.FindOne().SetSort(newestUsers))
}

func (r *MongoRepository) FindUsersByCredentials(ctx context.Context, rfids, fingerIDs []string) ([]User, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"rfid": bson.M{"$in": nonNil(rfids)}},
		bson.M{"fingerId": bson.M{"$in": nonNil(fingerIDs)}},
	}}
	return findAll[User](ctx, r.users, filter)
}

func (r *MongoRepository) SearchUsers(ctx context.Context, term string) ([]User, error) {
	re := containsRegex(term)
	filter := bson.M{"$or": bson.A{bson.M{"name": re}, bson.M{"rfid": re}, bson.M{"fingerId": re}}}
	return findAll[User](ctx, r.users, filter, options.Find().SetSort(newestUsers))
}

func (r *MongoRepository) ListUsers(ctx context.Context, offset, limit int) ([]User, int64, error) {
	opts := options.Find().SetSort(newestUsers).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	users, err := findAll[User](ctx, r.users, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.CountUsers(ctx)
	return users, total, err
}

func (r *MongoRepository) TopUsers(ctx context.Context, n int) ([]User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "attendance", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetLimit(int64(n))
	return findAll[User](ctx, r.users, bson.M{}, opts)
}

func (r *MongoRepository) CountUsers(ctx context.Context) (int64, error) {
	return r.users.CountDocuments(ctx, bson.M{})
}

func (r *MongoRepository) UpdateUser(ctx context.Context, u User) (User, error) {
	set := bson.M{"name": u.Name, "updatedAt": mongoNow()}
	unset := bson.M{}
	setOrUnset(set, unset, "employeeId", u.EmployeeID)
	setOrUnset(set, unset, "email", u.Email)
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var updated User
	err := r.users.FindOneAndUpdate(ctx, bson.M{"_id": u.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, mapMongoErr(err)
	}
	return updated, nil
}

func (r *MongoRepository) IncrementAttendance(ctx context.Context, id string, delta int) (User, error) {
	// Pipeline update keeps the counter from going below zero in one round trip.
	update := bson.A{bson.M{"$set": bson.M{
		"attendance": bson.M{"$max": bson.A{bson.M{"$add": bson.A{"$attendance", delta}}, 0}},
		"updatedAt":  mongoNow(),
	}}}
	var updated User
	err := r.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return updated, nil
}

func (r *MongoRepository) DeleteUser(ctx context.Context, id string) error {
	return deleteOne(ctx, r.users, id)
}

// --- unregistered ---

func (r *MongoRepository) FindUnregistered(ctx context.Context, rfid, fingerID string) (*UnregisteredUser, error) {
	or := bson.A{}
	if rfid != "" {
		or = append(or, bson.M{"rfid": rfid})
	}
	if fingerID != "" {
		or = append(or, bson.M{"fingerId": fingerID})
	}
	if len(or) == 0 {
		return nil, nil
	}
	return findOne[UnregisteredUser](ctx, r.unregistered, bson.M{"$or": or},
		options.FindOne().SetSort(bson.D{{Key: "lastSeen", Value: -1}}))
}

func (r *MongoRepository) SaveUnregistered(ctx context.Context, u UnregisteredUser) (UnregisteredUser, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
		if _, err := r.unregistered.InsertOne(ctx, u); err != nil {
			return UnregisteredUser{}, mapMongoErr(err)
		}
		return u, nil
	}
	res, err := r.unregistered.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return UnregisteredUser{}, mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return UnregisteredUser{}, ErrNotFound
	}
	return u, nil
}

func (r *MongoRepository) ListUnregistered(ctx context.Context, offset, limit int) ([]UnregisteredUser, int64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "lastSeen", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	items, err := findAll[UnregisteredUser](ctx, r.unregistered, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.CountUnregistered(ctx)
	return items, total, err
}

func (r *MongoRepository) CountUnregistered(ctx context.Context) (int64, error) {
	return r.unregistered.CountDocuments(ctx, bson.M{})
}

func (r *MongoRepository) DeleteUnregistered(ctx context.Context, id string) error {
	return deleteOne(ctx, r.unregistered, id)
}

// --- subjects ---

func (r *MongoRepository) CreateSubject(ctx context.Context, s Subject) (Subject, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = mongoNow()
	s.UpdatedAt = s.CreatedAt
	if _, err := r.subjects.InsertOne(ctx, s); err != nil {
		return Subject{}, mapMongoErr(err)
	}
	return s, nil
}

func (r *MongoRepository) GetSubject(ctx context.Context, id string) (*Subject, error) {
	return findOne[Subject](ctx, r.subjects, bson.M{"_id": id})
}

func (r *MongoRepository) FindSubjectByCode(ctx context.Context, code, excludeID string) (*Subject, error) {
	return findOne[Subject](ctx, r.subjects, bson.M{"courseCode": code, "_id": bson.M{"$ne": excludeID}})
}

func (r *MongoRepository) ListSubjects(ctx context.Context) ([]Subject, error) {
	return findAll[Subject](ctx, r.subjects, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}))
}

func (r *MongoRepository) UpdateSubject(ctx context.Context, s Subject) (Subject, error) {
	update := bson.M{"$set": bson.M{
		"name":       s.Name,
		"courseCode": s.CourseCode,
		"instructor": s.Instructor,
		"updatedAt":  mongoNow(),
	}}
	var updated Subject
	err := r.subjects.FindOneAndUpdate(ctx, bson.M{"_id": s.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, mapMongoErr(err)
	}
	return updated, nil
}

func (r *MongoRepository) DeleteSubject(ctx context.Context, id string) error {
	return deleteOne(ctx, r.subjects, id)
}

// --- records ---

var newestRecords = bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: 1}}

func (r *MongoRepository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = mongoNow()
	}
	if rec.Type == "" {
		rec.Type = RecordTypeCheckIn
	}
	if _, err := r.records.InsertOne(ctx, rec); err != nil {
		return Record{}, mapMongoErr(err)
	}
	return rec, nil
}

func recordFilterDoc(f RecordFilter) bson.M {
	filter := bson.M{}
	span := bson.M{}
	if f.From != nil {
		span["$gte"] = *f.From
	}
	if f.To != nil {
		span["$lt"] = *f.To
	}
	if len(span) > 0 {
		filter["timestamp"] = span
	}
	if f.Search != "" {
		re := containsRegex(f.Search)
		filter["$or"] = bson.A{
			bson.M{"rfid": re},
			bson.M{"fingerId": re},
			bson.M{"userId": bson.M{"$in": nonNil(f.UserIDs)}},
			bson.M{"rfid": bson.M{"$in": nonNil(f.RFIDs)}},
			bson.M{"fingerId": bson.M{"$in": nonNil(f.FingerIDs)}},
		}
	}
	return filter
}

func (r *MongoRepository) ListRecords(ctx context.Context, f RecordFilter) ([]Record, int64, error) {
	filter := recordFilterDoc(f)
	opts := options.Find().SetSort(newestRecords).SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	records, err := findAll[Record](ctx, r.records, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.records.CountDocuments(ctx, filter)
	return records, total, err
}

func (r *MongoRepository) CountRecords(ctx context.Context, f RecordFilter) (int64, error) {
	return r.records.CountDocuments(ctx, recordFilterDoc(f))
}

func (r *MongoRepository) ListUserRecords(ctx context.Context, userID, rfid, fingerID string) ([]Record, error) {
	or := bson.A{}
	if userID != "" {
		or = append(or, bson.M{"userId": userID})
	}
	if rfid != "" {
		or = append(or, bson.M{"rfid": rfid})
	}
	if fingerID != "" {
		or = append(or, bson.M{"fingerId": fingerID})
	}
	if len(or) == 0 {
		return nil, nil
	}
	return findAll[Record](ctx, r.records, bson.M{"$or": or}, options.Find().SetSort(newestRecords))
}

// --- selection ---

type selectionDoc struct {
	ID              string `bson:"_id"`
	SelectedSubject `bson:",inline"`
}

func (r *MongoRepository) GetSelection(ctx context.Context) (*SelectedSubject, error) {
	doc, err := findOne[selectionDoc](ctx, r.selection, bson.M{"_id": selectionSlotID})
	if err != nil || doc == nil {
		return nil, err
	}
	return &doc.SelectedSubject, nil
}

// ReplaceSelection upserts the fixed slot document.
func (r *MongoRepository) ReplaceSelection(ctx context.Context, s SelectedSubject) error {
	_, err := r.selection.ReplaceOne(ctx, bson.M{"_id": selectionSlotID},
		selectionDoc{ID: selectionSlotID, SelectedSubject: s},
		options.Replace().SetUpsert(true))
	return err
}

func (r *MongoRepository) ClearSelection(ctx context.Context) error {
	_, err := r.selection.DeleteMany(ctx, bson.M{})
	return err
}
