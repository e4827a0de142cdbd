package assemble

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/schema"
)

// leafField maps a leaf column descriptor to its Arrow field.  The
// mapping follows the converted-type annotations the same way the
// pqarrow schema conversion does, so arrays assembled here line up
// with the logical schema exposed by the reader.
func leafField(descr *schema.Column) (arrow.Field, error) {
	node := descr.SchemaNode().(*schema.PrimitiveNode)
	var dt arrow.DataType
	switch descr.PhysicalType() {
	case parquet.Types.Boolean:
		dt = arrow.FixedWidthTypes.Boolean
	case parquet.Types.Int32:
		switch node.ConvertedType() {
		case schema.ConvertedTypes.None, schema.ConvertedTypes.Int32:
			dt = arrow.PrimitiveTypes.Int32
		case schema.ConvertedTypes.Int8:
			dt = arrow.PrimitiveTypes.Int8
		case schema.ConvertedTypes.Int16:
			dt = arrow.PrimitiveTypes.Int16
		case schema.ConvertedTypes.Uint8:
			dt = arrow.PrimitiveTypes.Uint8
		case schema.ConvertedTypes.Uint16:
			dt = arrow.PrimitiveTypes.Uint16
		case schema.ConvertedTypes.Uint32:
			dt = arrow.PrimitiveTypes.Uint32
		case schema.ConvertedTypes.Date:
			dt = arrow.FixedWidthTypes.Date32
		case schema.ConvertedTypes.TimeMillis:
			dt = arrow.FixedWidthTypes.Time32ms
		default:
			return arrow.Field{}, fmt.Errorf("%w: column %q: converted type %s on INT32",
				ErrNotImplemented, descr.Name(), node.ConvertedType())
		}
	case parquet.Types.Int64:
		switch node.ConvertedType() {
		case schema.ConvertedTypes.None, schema.ConvertedTypes.Int64:
			dt = arrow.PrimitiveTypes.Int64
		case schema.ConvertedTypes.Uint64:
			dt = arrow.PrimitiveTypes.Uint64
		case schema.ConvertedTypes.TimestampMillis:
			dt = arrow.FixedWidthTypes.Timestamp_ms
		case schema.ConvertedTypes.TimestampMicros:
			dt = arrow.FixedWidthTypes.Timestamp_us
		case schema.ConvertedTypes.TimeMicros:
			dt = arrow.FixedWidthTypes.Time64us
		default:
			return arrow.Field{}, fmt.Errorf("%w: column %q: converted type %s on INT64",
				ErrNotImplemented, descr.Name(), node.ConvertedType())
		}
	case parquet.Types.Int96:
		// Deprecated impala timestamps carry nanoseconds.
		dt = arrow.FixedWidthTypes.Timestamp_ns
	case parquet.Types.Float:
		dt = arrow.PrimitiveTypes.Float32
	case parquet.Types.Double:
		dt = arrow.PrimitiveTypes.Float64
	case parquet.Types.ByteArray:
		if node.ConvertedType() == schema.ConvertedTypes.UTF8 {
			dt = arrow.BinaryTypes.String
		} else {
			dt = arrow.BinaryTypes.Binary
		}
	case parquet.Types.FixedLenByteArray:
		dt = &arrow.FixedSizeBinaryType{ByteWidth: node.TypeLength()}
	default:
		return arrow.Field{}, fmt.Errorf("%w: column %q: physical type %s",
			ErrNotImplemented, descr.Name(), descr.PhysicalType())
	}
	return arrow.Field{
		Name:     descr.Name(),
		Type:     dt,
		Nullable: node.RepetitionType() == parquet.Repetitions.Optional,
	}, nil
}
