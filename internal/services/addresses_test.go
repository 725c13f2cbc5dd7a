package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/models"
)

func newAddressEnv() (*AddressBook, *fakeUsers, auth.Principal) {
	p := customer()
	users := newFakeUsers(&models.User{ID: p.ID, Email: p.Email, Addresses: []models.SavedAddress{}})
	return NewAddressBook(users, testLogger()), users, p
}

func TestFirstAddressBecomesDefault(t *testing.T) {
	book, _, p := newAddressEnv()

	first, err := book.Add(context.Background(), p, AddressInput{Address: *validAddress()})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := book.Add(context.Background(), p, AddressInput{Address: *validAddress()})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	third, err := book.Add(context.Background(), p, AddressInput{Address: *validAddress(), IsDefault: true})
	require.NoError(t, err)
	assert.True(t, third.IsDefault)

	addresses, err := book.List(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, addresses, 3)
	defaults := 0
	for _, a := range addresses {
		if a.IsDefault {
			defaults++
			assert.Equal(t, third.ID, a.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestAddAddressValidates(t *testing.T) {
	book, _, p := newAddressEnv()
	address := *validAddress()
	address.Pincode = ""
	address.Category = "holiday"

	_, err := book.Add(context.Background(), p, AddressInput{Address: address})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidAddress, apperr.CodeOf(err))
	assert.Len(t, apperr.As(err).Details, 2)
}

func TestUpdateAddress(t *testing.T) {
	book, _, p := newAddressEnv()
	first, err := book.Add(context.Background(), p, AddressInput{Address: *validAddress()})
	require.NoError(t, err)
	second, err := book.Add(context.Background(), p, AddressInput{Address: *validAddress()})
	require.NoError(t, err)

	changed := *validAddress()
	changed.City = "Nagpur"
	changed.Category = "Work"
	updated, err := book.Update(context.Background(), p, second.ID, AddressInput{Address: changed, IsDefault: true})
	require.NoError(t, err)
	assert.Equal(t, "Nagpur", updated.City)
	assert.Equal(t, models.AddressWork, updated.Category)
	assert.True(t, updated.IsDefault)

	addresses, err := book.List(context.Background(), p)
	require.NoError(t, err)
	for _, a := range addresses {
		if a.ID == first.ID {
			assert.False(t, a.IsDefault)
		}
	}

	_, err = book.Update(context.Background(), p, "missing", AddressInput{Address: *validAddress()})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDeleteDefaultAddressPromotesAnother(t *testing.T) {
	book, _, p := newAddressEnv()
	first, err := book.Add(context.Background(), p, AddressInput{Address: *validAddress()})
	require.NoError(t, err)
	second, err := book.Add(context.Background(), p, AddressInput{Address: *validAddress()})
	require.NoError(t, err)

	require.NoError(t, book.Delete(context.Background(), p, first.ID))

	addresses, err := book.List(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, second.ID, addresses[0].ID)
	assert.True(t, addresses[0].IsDefault)

	assert.True(t, apperr.IsKind(book.Delete(context.Background(), p, first.ID), apperr.KindNotFound))
}

func TestAddressBookUnknownUser(t *testing.T) {
	book, _, _ := newAddressEnv()
	_, err := book.List(context.Background(), auth.Principal{ID: primitive.NewObjectID()})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
