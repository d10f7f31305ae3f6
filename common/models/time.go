package models

import (
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type Time struct {
	time.Time
}

func NewTime(t time.Time) Time {
	// Note: BSON datetimes only carry millisecond precision, so we round before
	// we store the value to ensure we do not retrieve a value with different
	// precision (as golang can provide larger precision).
	return Time{Time: t.UTC().Round(time.Millisecond)}
}

func NewTimePtr(t time.Time) *Time {
	newTime := NewTime(t)
	return &newTime
}

// MarshalBSONValue stores the time as a native BSON datetime rather than a
// sub-document wrapping the embedded time.Time.
func (s Time) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(s.Time)
}

func (s *Time) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null {
		*s = Time{}
		return nil
	}
	raw := bson.RawValue{Type: t, Value: data}
	var parsed time.Time
	if err := raw.Unmarshal(&parsed); err != nil {
		return errors.Wrap(err, "error parsing time")
	}
	*s = NewTime(parsed)
	return nil
}
