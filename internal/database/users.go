package database

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

// UserQuery drives the admin user listing. Search matches email, name,
// phone and saved address city, state or pincode.
type UserQuery struct {
	Search string
	Active *bool
	Page   int64
	Limit  int64
}

type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(UsersCollection)}
}

// Insert stores user. ErrDuplicate when the email is already registered.
func (s *UserStore) Insert(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, user)
	if err != nil {
		return translate(err, "insert user")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user models.User
	if err := s.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, translate(err, "find user")
	}
	if user.Addresses == nil {
		user.Addresses = []models.SavedAddress{}
	}
	return &user, nil
}

// SetAddresses replaces the user's address book.
func (s *UserStore) SetAddresses(ctx context.Context, id primitive.ObjectID, addresses []models.SavedAddress) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"addresses": addresses,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return translate(err, "set addresses")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of users, newest first, with the total match count.
func (s *UserStore) List(ctx context.Context, q UserQuery) ([]models.User, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := userFilter(q)
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "count users")
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip((page - 1) * q.Limit).SetLimit(q.Limit)
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, translate(err, "find users")
	}
	defer cursor.Close(ctx)

	users := make([]models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, translate(err, "decode users")
	}
	for i := range users {
		if users[i].Addresses == nil {
			users[i].Addresses = []models.SavedAddress{}
		}
	}
	return users, total, nil
}

func userFilter(q UserQuery) bson.M {
	filter := bson.M{}
	if q.Active != nil {
		filter["isActive"] = *q.Active
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"email": pattern},
			bson.M{"fullName.firstName": pattern},
			bson.M{"fullName.lastName": pattern},
			bson.M{"phone": pattern},
			bson.M{"addresses.city": pattern},
			bson.M{"addresses.state": pattern},
			bson.M{"addresses.pincode": pattern},
		}
	}
	return filter
}
