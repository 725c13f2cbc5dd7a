package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/models"
)

type AddressInput struct {
	models.Address
	IsDefault bool `json:"isDefault"`
}

// AddressBook manages a customer's saved shipping addresses. At most one
// address is the default, and the first saved address becomes it.
type AddressBook struct {
	users UserRepository
	log   *zap.Logger
}

func NewAddressBook(users UserRepository, log *zap.Logger) *AddressBook {
	return &AddressBook{users: users, log: log.Named("address")}
}

func (b *AddressBook) List(ctx context.Context, p auth.Principal) ([]models.SavedAddress, error) {
	user, err := b.users.FindByID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeNotFound, "user not found")
	}
	return user.Addresses, nil
}

func (b *AddressBook) Add(ctx context.Context, p auth.Principal, in AddressInput) (*models.SavedAddress, error) {
	address := normalizeAddress(in.Address)
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	user, err := b.users.FindByID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeNotFound, "user not found")
	}

	saved := models.SavedAddress{
		ID:        uuid.NewString(),
		Address:   address,
		IsDefault: in.IsDefault || len(user.Addresses) == 0,
	}
	addresses := append(user.Addresses, saved)
	if saved.IsDefault {
		makeDefault(addresses, saved.ID)
	}
	if err := b.users.SetAddresses(ctx, p.ID, addresses); err != nil {
		return nil, storeErr(err, apperr.CodeNotFound, "user not found")
	}
	b.log.Info("address added", zap.String("userId", p.ID.Hex()), zap.String("addressId", saved.ID))
	return &saved, nil
}

func (b *AddressBook) Update(ctx context.Context, p auth.Principal, id string, in AddressInput) (*models.SavedAddress, error) {
	address := normalizeAddress(in.Address)
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	user, err := b.users.FindByID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeNotFound, "user not found")
	}
	existing, ok := user.FindAddress(id)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeNotFound, "address not found")
	}

	existing.Address = address
	if in.IsDefault {
		makeDefault(user.Addresses, id)
	}
	updated := *existing
	if err := b.users.SetAddresses(ctx, p.ID, user.Addresses); err != nil {
		return nil, storeErr(err, apperr.CodeNotFound, "user not found")
	}
	return &updated, nil
}

func (b *AddressBook) Delete(ctx context.Context, p auth.Principal, id string) error {
	user, err := b.users.FindByID(ctx, p.ID)
	if err != nil {
		return storeErr(err, apperr.CodeNotFound, "user not found")
	}
	removed, ok := user.FindAddress(id)
	if !ok {
		return apperr.NotFound(apperr.CodeNotFound, "address not found")
	}
	wasDefault := removed.IsDefault

	remaining := make([]models.SavedAddress, 0, len(user.Addresses))
	for _, a := range user.Addresses {
		if a.ID != id {
			remaining = append(remaining, a)
		}
	}
	if wasDefault && len(remaining) > 0 {
		remaining[0].IsDefault = true
	}
	if err := b.users.SetAddresses(ctx, p.ID, remaining); err != nil {
		return storeErr(err, apperr.CodeNotFound, "user not found")
	}
	b.log.Info("address deleted", zap.String("userId", p.ID.Hex()), zap.String("addressId", id))
	return nil
}

func makeDefault(addresses []models.SavedAddress, id string) {
	for i := range addresses {
		addresses[i].IsDefault = addresses[i].ID == id
	}
}
