package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// slotArgs splits a tagged value into its four columns. Unselected members
// are NULL.
func slotArgs(v types.Value) (valueType string, addr, num, b32 any, err error) {
	switch x := v.(type) {
	case types.AddressValue:
		return string(types.ValueTypeAddress), x.String(), nil, nil, nil
	case types.UIntValue:
		return string(types.ValueTypeUInt), nil, x.String(), nil, nil
	case types.Bytes32Value:
		return string(types.ValueTypeBytes32), nil, nil, x[:], nil
	}
	return "", nil, nil, nil, fmt.Errorf("unsupported slot value %T", v)
}

// slotRow receives the four slot columns of a row.
type slotRow struct {
	valueType string
	addr      sql.NullString
	num       sql.NullString
	b32       []byte
}

func (r slotRow) value() (types.ValueType, types.Value, error) {
	t := types.ValueType(r.valueType)
	switch t {
	case types.ValueTypeAddress:
		if !r.addr.Valid {
			return "", nil, fmt.Errorf("address slot is NULL")
		}
		return t, types.AddressValue(common.HexToAddress(r.addr.String)), nil
	case types.ValueTypeUInt:
		if !r.num.Valid {
			return "", nil, fmt.Errorf("uint slot is NULL")
		}
		n, err := strconv.ParseUint(r.num.String, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("uint slot: %w", err)
		}
		return t, types.UIntValue(n), nil
	case types.ValueTypeBytes32:
		if len(r.b32) != 32 {
			return "", nil, fmt.Errorf("bytes32 slot has %d bytes", len(r.b32))
		}
		return t, types.Bytes32Value(r.b32), nil
	}
	return "", nil, fmt.Errorf("unknown value type %q", r.valueType)
}
