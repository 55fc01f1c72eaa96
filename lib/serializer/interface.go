// Package serializer defines the pluggable encoding used to store lock
// records as opaque byte values in the underlying key-value database.
package serializer

// ISerializer is the interface for all record serializers
type ISerializer interface {
	// Serialize encodes a value into a byte array
	// It returns the encoded byte array and an error if any
	Serialize(v interface{}) ([]byte, error)
	// Deserialize decodes a byte array into the value pointed to by v
	// It returns an error if any
	Deserialize(b []byte, v interface{}) error
}
