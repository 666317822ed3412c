package image

// Supported process data types. Encoding on the wire is always
// little-endian, matching the EtherCAT convention.
type DataType uint8

const (
	BOOLEAN    DataType = 0x01
	INTEGER8   DataType = 0x02
	INTEGER16  DataType = 0x03
	INTEGER32  DataType = 0x04
	UNSIGNED8  DataType = 0x05
	UNSIGNED16 DataType = 0x06
	UNSIGNED32 DataType = 0x07
	REAL32     DataType = 0x08
	INTEGER64  DataType = 0x15
	UNSIGNED64 DataType = 0x1B
	REAL64     DataType = 0x11
)

var typeNames = map[DataType]string{
	BOOLEAN:    "BOOL",
	INTEGER8:   "I8",
	INTEGER16:  "I16",
	INTEGER32:  "I32",
	INTEGER64:  "I64",
	UNSIGNED8:  "U8",
	UNSIGNED16: "U16",
	UNSIGNED32: "U32",
	UNSIGNED64: "U64",
	REAL32:     "F32",
	REAL64:     "F64",
}

func (t DataType) String() string {
	name, ok := typeNames[t]
	if !ok {
		return "INVALID"
	}
	return name
}

// Size returns the number of bytes occupied inside the image.
// A BOOLEAN occupies a single bit but never spans byte boundaries,
// so its byte footprint is 1.
func (t DataType) Size() uint32 {
	switch t {
	case BOOLEAN, UNSIGNED8, INTEGER8:
		return 1
	case UNSIGNED16, INTEGER16:
		return 2
	case UNSIGNED32, INTEGER32, REAL32:
		return 4
	case UNSIGNED64, INTEGER64, REAL64:
		return 8
	default:
		return 0
	}
}

// ParseDataType converts a type name from a device description file
func ParseDataType(name string) (DataType, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, ErrTypeMismatch
}
