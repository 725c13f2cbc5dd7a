package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Transactor runs a callback inside a multi-document transaction. Store
// calls made with the callback's context join the transaction.
type Transactor struct {
	client *mongo.Client
}

func NewTransactor(client *mongo.Client) *Transactor {
	return &Transactor{client: client}
}

// WithTransaction commits when fn returns nil and aborts otherwise. The
// driver retries fn on transient transaction errors, so fn must rebuild any
// state it accumulates.
func (t *Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return translate(err, "start session")
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	}, opts)
	return err
}

// SupportsTransactions reports whether the deployment accepts multi-document
// transactions. Standalone servers do not.
func SupportsTransactions(ctx context.Context, client *mongo.Client) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return false, translate(err, "hello")
	}
	return topologySupportsTransactions(hello.SetName, hello.Msg), nil
}

// topologySupportsTransactions reads the hello reply: replica set members
// carry setName and mongos answers msg "isdbgrid".
func topologySupportsTransactions(setName, msg string) bool {
	return setName != "" || msg == "isdbgrid"
}
