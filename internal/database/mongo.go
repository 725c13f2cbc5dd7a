package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"storefront/internal/apperr"
)

// Collection names.
const (
	ProductsCollection      = "products"
	CouponsCollection       = "coupons"
	OrdersCollection        = "orders"
	PaymentsCollection      = "payments"
	UsersCollection         = "users"
	AdminsCollection        = "admins"
	RefreshTokensCollection = "refresh_tokens"
)

const opTimeout = 5 * time.Second

var (
	ErrNotFound       = errors.New("document not found")
	ErrDuplicate      = errors.New("duplicate key")
	ErrStatusConflict = errors.New("status changed concurrently")
)

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}
	return client, nil
}

// Pinger reports whether the primary is reachable.
type Pinger struct {
	client *mongo.Client
}

func NewPinger(client *mongo.Client) *Pinger {
	return &Pinger{client: client}
}

func (p *Pinger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.client.Ping(ctx, readpref.Primary())
}

// translate maps driver errors onto the package sentinels. Connectivity
// failures become apperr Unavailable errors so they surface as 503.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var selectionErr topology.ServerSelectionError
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.Wrap(ErrDuplicate, op)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.As(err, &selectionErr):
		return apperr.Wrap(apperr.KindUnavailable, apperr.CodeUnavailable, "database unavailable", errors.Wrap(err, op))
	default:
		return errors.Wrap(err, op)
	}
}
