package mongo

import (
	"encoding/hex"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
)

// toDocument converts a decoded BSON document into the document model.
func toDocument(d bson.D) document.Document {
	doc := make(document.Document, len(d))
	for _, elem := range d {
		doc[elem.Key] = toValue(elem.Value)
	}
	return doc
}

// toValue maps BSON values onto document values. ObjectIDs become their 24-character
// hex form and dates become RFC 3339 strings, so type inference recognizes them.
// BSON types without a natural counterpart (decimals, binaries, timestamps, regexes,
// code) are kept as opaque values.
func toValue(v any) document.Value {
	switch x := v.(type) {
	case nil, bson.Null, bson.Undefined:
		return document.Null()
	case bson.D:
		return document.Object(toDocument(x))
	case bson.M:
		fields := make(map[string]document.Value, len(x))
		for k, item := range x {
			fields[k] = toValue(item)
		}
		return document.Object(fields)
	case bson.A:
		return toArray(x)
	case []any:
		return toArray(x)
	case bson.ObjectID:
		return document.String(x.Hex())
	case bson.DateTime:
		return document.String(x.Time().UTC().Format(time.RFC3339Nano))
	case time.Time:
		return document.String(x.UTC().Format(time.RFC3339Nano))
	case bson.Decimal128:
		return document.Opaque(x.String())
	case bson.Binary:
		return document.Opaque("binary:" + hex.EncodeToString(x.Data))
	case bson.Timestamp:
		return document.Opaque(time.Unix(int64(x.T), 0).UTC().Format(time.RFC3339))
	case bson.Regex:
		return document.Opaque("/" + x.Pattern + "/" + x.Options)
	case bson.JavaScript:
		return document.Opaque(string(x))
	case bson.Symbol:
		return document.String(string(x))
	case bson.MinKey:
		return document.Opaque("MinKey")
	case bson.MaxKey:
		return document.Opaque("MaxKey")
	}
	return document.FromAny(v)
}

func toArray(items []any) document.Value {
	out := make([]document.Value, len(items))
	for i, item := range items {
		out[i] = toValue(item)
	}
	return document.Array(out...)
}
