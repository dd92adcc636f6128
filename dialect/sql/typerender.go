package sql

import (
	"fmt"
	"strconv"
)

// TypeKind enumerates the logical column types the renderer understands.
// The set is closed: RenderType dispatches over it exhaustively and an
// unknown kind is a compile error, not a fallback.
type TypeKind int

const (
	// Logical kinds whose rendering depends on the capability descriptor.
	TypeBool        TypeKind = iota // BIT
	TypeDate                        // DATE, or DATETIME before 2008
	TypeTime                        // TIME[(p)], or DATETIME before 2008
	TypeText                        // TEXT, or VARCHAR(max) under deprecated large types
	TypeUnicodeText                 // NTEXT, or NVARCHAR(max) under deprecated large types
	TypeLargeBinary                 // IMAGE, or VARBINARY(max) under deprecated large types
	TypeUnicode                     // NVARCHAR

	// Fixed-form kinds.
	TypeTinyInt
	TypeSmallInt
	TypeInt
	TypeBigInt
	TypeDecimal
	TypeFloat
	TypeReal
	TypeChar
	TypeVarChar
	TypeNChar
	TypeNVarChar
	TypeBinary
	TypeVarBinary
	TypeDateTime
	TypeDateTime2
	TypeSmallDateTime
	TypeDateTimeOffset
	TypeRowVersion
	TypeMoney
	TypeSmallMoney
	TypeUniqueIdentifier
	TypeXML
	TypeVariant
)

// ColumnType is the abstract description of a column type. Size, Precision,
// Scale and Collation apply only where the kind uses them.
type ColumnType struct {
	Kind      TypeKind
	Size      int    // character/binary length; 0 renders "max" for variable types
	Precision int    // DECIMAL/FLOAT precision, or fractional seconds for time kinds
	Scale     int    // DECIMAL scale
	Collation string // COLLATE annotation for character types
}

// RenderType maps a column type to its SQL Server syntax under the given
// capability. It is a pure function: no state, same inputs always yield the
// same text.
func RenderType(t ColumnType, cap *Capability) (string, error) {
	switch t.Kind {
	case TypeBool:
		return "BIT", nil
	case TypeDate:
		if !cap.DateTypesSupported() {
			return "DATETIME", nil
		}
		return "DATE", nil
	case TypeTime:
		if !cap.DateTypesSupported() {
			return "DATETIME", nil
		}
		return precise("TIME", t.Precision), nil
	case TypeText:
		if cap.DeprecateLargeTypes() {
			return extend("VARCHAR", t, true), nil
		}
		return extend("TEXT", t, false), nil
	case TypeUnicodeText:
		if cap.DeprecateLargeTypes() {
			return extend("NVARCHAR", t, true), nil
		}
		return extend("NTEXT", t, false), nil
	case TypeLargeBinary:
		if cap.DeprecateLargeTypes() {
			return varsized("VARBINARY", t.Size), nil
		}
		return "IMAGE", nil
	case TypeUnicode, TypeNVarChar:
		return extend("NVARCHAR", t, true), nil
	case TypeTinyInt:
		return "TINYINT", nil
	case TypeSmallInt:
		return "SMALLINT", nil
	case TypeInt:
		return "INTEGER", nil
	case TypeBigInt:
		return "BIGINT", nil
	case TypeDecimal:
		if t.Precision == 0 {
			return "DECIMAL", nil
		}
		return fmt.Sprintf("DECIMAL(%d, %d)", t.Precision, t.Scale), nil
	case TypeFloat:
		return precise("FLOAT", t.Precision), nil
	case TypeReal:
		return "REAL", nil
	case TypeChar:
		return extend("CHAR", t, false), nil
	case TypeVarChar:
		return extend("VARCHAR", t, true), nil
	case TypeNChar:
		return extend("NCHAR", t, false), nil
	case TypeBinary:
		if t.Size > 0 {
			return "BINARY(" + strconv.Itoa(t.Size) + ")", nil
		}
		return "BINARY", nil
	case TypeVarBinary:
		return varsized("VARBINARY", t.Size), nil
	case TypeDateTime:
		return "DATETIME", nil
	case TypeDateTime2:
		return precise("DATETIME2", t.Precision), nil
	case TypeSmallDateTime:
		return "SMALLDATETIME", nil
	case TypeDateTimeOffset:
		return precise("DATETIMEOFFSET", t.Precision), nil
	case TypeRowVersion:
		return "ROWVERSION", nil
	case TypeMoney:
		return "MONEY", nil
	case TypeSmallMoney:
		return "SMALLMONEY", nil
	case TypeUniqueIdentifier:
		return "UNIQUEIDENTIFIER", nil
	case TypeXML:
		return "XML", nil
	case TypeVariant:
		return "SQL_VARIANT", nil
	default:
		return "", NewCompileError("", fmt.Sprintf("unknown column type kind %d", t.Kind))
	}
}

// extend appends the length and COLLATE annotations to a character type.
// Variable-width types with no length render as "max".
func extend(spec string, t ColumnType, max bool) string {
	switch {
	case t.Size > 0:
		spec += "(" + strconv.Itoa(t.Size) + ")"
	case max:
		spec += "(max)"
	}
	if t.Collation != "" {
		spec += " COLLATE " + t.Collation
	}
	return spec
}

func varsized(spec string, size int) string {
	if size > 0 {
		return spec + "(" + strconv.Itoa(size) + ")"
	}
	return spec + "(max)"
}

func precise(spec string, precision int) string {
	if precision > 0 {
		return spec + "(" + strconv.Itoa(precision) + ")"
	}
	return spec
}
