package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/database"
	"storefront/internal/models"
)

type ProductRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	List(ctx context.Context, q database.ProductQuery) ([]models.Product, int64, error)
	Insert(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, id primitive.ObjectID, changes database.ProductChanges) (*models.Product, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID) error
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Product, error)
	UpdateVariant(ctx context.Context, productID, variantID primitive.ObjectID, changes database.VariantChanges) (*models.Product, error)
	DecrementStock(ctx context.Context, productID, variantID primitive.ObjectID, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID, variantID primitive.ObjectID, qty int) error
	Stats(ctx context.Context, top int64) (*models.ProductStats, error)
}

type CouponRepository interface {
	Insert(ctx context.Context, coupon *models.Coupon) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Coupon, error)
	FindActiveByCode(ctx context.Context, code string) (*models.Coupon, error)
	Save(ctx context.Context, coupon *models.Coupon) error
	ListValid(ctx context.Context, now time.Time) ([]models.Coupon, error)
	Deactivate(ctx context.Context, id primitive.ObjectID) error
	Redeem(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
	Release(ctx context.Context, id primitive.ObjectID) error
}

type OrderRepository interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	List(ctx context.Context, q database.OrderQuery) ([]models.Order, error)
	Update(ctx context.Context, id primitive.ObjectID, expectedStatus string, changes database.OrderChanges) (*models.Order, error)
}

type PaymentRepository interface {
	Insert(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	Replace(ctx context.Context, payment *models.Payment) error
	List(ctx context.Context, q database.PaymentQuery) ([]models.Payment, int64, error)
}

type UserRepository interface {
	Insert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SetAddresses(ctx context.Context, id primitive.ObjectID, addresses []models.SavedAddress) error
	List(ctx context.Context, q database.UserQuery) ([]models.User, int64, error)
}

type AdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
	Insert(ctx context.Context, admin *models.Admin) error
}

type RefreshTokenRepository interface {
	Insert(ctx context.Context, token *models.RefreshToken) error
	FindActive(ctx context.Context, hash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) error
	RevokeByHash(ctx context.Context, hash string) (bool, error)
}

// Transactor runs fn in a database transaction. Store calls must use the
// context passed to fn to take part in it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderNotifier is told about placed orders. Implementations must not block.
type OrderNotifier interface {
	OrderPlaced(order models.Order, recipient string)
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int64 `json:"page"`
	Limit int64 `json:"limit"`
	Total int64 `json:"total"`
}

// storeErr converts repository errors. ErrNotFound becomes a NotFound error
// with the given code; anything that is not already an application error is
// internal.
func storeErr(err error, notFound apperr.Code, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound(notFound, message)
	}
	return apperr.As(err)
}

func parseID(raw, field string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("validation failed", field+" is invalid")
	}
	return id, nil
}
