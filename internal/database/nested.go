package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// nestedUpdate builds the filter and update that patch one element of an
// embedded array, addressed by the element's _id, using the positional
// operator.
func nestedUpdate(parentID interface{}, arrayField string, childID interface{}, patch bson.M) (bson.M, bson.M) {
	filter := bson.M{
		"_id":               parentID,
		arrayField + "._id": childID,
	}
	set := bson.M{}
	for key, value := range patch {
		set[arrayField+".$."+key] = value
	}
	return filter, bson.M{"$set": set}
}

// updateNestedByID applies patch to the child element and decodes the updated
// parent into out. ErrNotFound when either the parent or the child is missing.
func updateNestedByID(ctx context.Context, coll *mongo.Collection, parentID interface{}, arrayField string, childID interface{}, patch bson.M, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter, update := nestedUpdate(parentID, arrayField, childID, patch)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	return translate(err, "update nested "+arrayField)
}
