package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SavedAddress is an entry of the user's address book.
type SavedAddress struct {
	ID        string `bson:"id" json:"id"`
	Address   `bson:",inline"`
	IsDefault bool `bson:"isDefault" json:"isDefault"`
}

type FullName struct {
	FirstName string `bson:"firstName" json:"firstName"`
	LastName  string `bson:"lastName" json:"lastName"`
}

// User represents the customer account.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	FullName     FullName           `bson:"fullName" json:"fullName"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Addresses    []SavedAddress     `bson:"addresses" json:"addresses"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// FindAddress returns the saved address with the given id.
func (u *User) FindAddress(id string) (*SavedAddress, bool) {
	for i := range u.Addresses {
		if u.Addresses[i].ID == id {
			return &u.Addresses[i], true
		}
	}
	return nil, false
}
