// Package txid encodes and decodes the composite merchant order reference
// sent to the payment gateway: "{unix}-{gamingId}-{productId}". The decoded
// reference is the only link between an asynchronous gateway callback and the
// purchase it settles.
package txid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const delimiter = "-"

// ErrMalformed indicates a transaction ID that cannot be decoded.
var ErrMalformed = errors.New("malformed transaction id")

// Decoded holds the domain identifiers recovered from a transaction ID.
type Decoded struct {
	GamingID  string
	ProductID string
}

// Encode builds a transaction ID from the purchase context. The gaming ID
// must not contain the delimiter; the product ID may, because Decode treats
// everything after the second delimiter as the product ID.
func Encode(ts time.Time, gamingID, productID string) (string, error) {
	if gamingID == "" {
		return "", fmt.Errorf("encode transaction id: empty gaming id")
	}
	if productID == "" {
		return "", fmt.Errorf("encode transaction id: empty product id")
	}
	if strings.Contains(gamingID, delimiter) {
		return "", fmt.Errorf("encode transaction id: gaming id %q contains %q", gamingID, delimiter)
	}
	return strconv.FormatInt(ts.Unix(), 10) + delimiter + gamingID + delimiter + productID, nil
}

// Decode extracts the gaming ID and product ID from a transaction ID.
func Decode(id string) (Decoded, error) {
	parts := strings.SplitN(id, delimiter, 3)
	if len(parts) < 3 {
		return Decoded{}, fmt.Errorf("%w: %q has %d segments, want 3", ErrMalformed, id, len(parts))
	}
	if parts[1] == "" || parts[2] == "" {
		return Decoded{}, fmt.Errorf("%w: %q has empty segments", ErrMalformed, id)
	}
	return Decoded{GamingID: parts[1], ProductID: parts[2]}, nil
}
