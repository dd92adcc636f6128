package sql

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// NullUUID is a scan destination for UNIQUEIDENTIFIER columns that may be
// null. The server returns the value in its on-the-wire form, with the first
// three groups little-endian; Scan normalizes it to RFC 4122 byte order.
type NullUUID struct {
	UUID  uuid.UUID
	Valid bool // Valid is true if UUID is not NULL.
}

// Scan implements the sql.Scanner interface.
func (n *NullUUID) Scan(value any) error {
	n.UUID, n.Valid = uuid.Nil, false
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 16 {
			u, err := uuid.FromBytes(swapUUIDEndianness(v))
			if err != nil {
				return fmt.Errorf("mssql: scan uniqueidentifier: %w", err)
			}
			n.UUID, n.Valid = u, true
			return nil
		}
		u, err := uuid.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("mssql: scan uniqueidentifier: %w", err)
		}
		n.UUID, n.Valid = u, true
		return nil
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("mssql: scan uniqueidentifier: %w", err)
		}
		n.UUID, n.Valid = u, true
		return nil
	default:
		return fmt.Errorf("mssql: scan uniqueidentifier: unsupported type %T", value)
	}
}

// Value implements the driver.Valuer interface. The string form avoids the
// endianness question entirely.
func (n NullUUID) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.UUID.String(), nil
}

// swapUUIDEndianness converts between the server's mixed-endian GUID layout
// and RFC 4122 byte order. The transform is its own inverse.
func swapUUIDEndianness(b []byte) []byte {
	out := make([]byte, 16)
	copy(out, b)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	return out
}
