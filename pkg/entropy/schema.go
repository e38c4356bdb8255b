package entropy

// Kind is the declared type of a record field. Names follow the Pig type
// vocabulary (int, long, double, chararray) with Go aliases accepted by
// ParseKind.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
)

// countKinds are the kinds accepted for the count field.
var countKinds = []Kind{KindInt32, KindInt64}

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindInt32:   "int",
	KindInt64:   "long",
	KindFloat32: "float",
	KindFloat64: "double",
	KindString:  "chararray",
	KindBytes:   "bytearray",
}

var kindAliases = map[string]Kind{
	"int":       KindInt32,
	"int32":     KindInt32,
	"long":      KindInt64,
	"int64":     KindInt64,
	"float":     KindFloat32,
	"float32":   KindFloat32,
	"double":    KindFloat64,
	"float64":   KindFloat64,
	"chararray": KindString,
	"string":    KindString,
	"bytearray": KindBytes,
	"bytes":     KindBytes,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a type name (int, int32, long, int64, float, double,
// chararray, string, bytearray, bytes) to a Kind. Unknown names map to
// KindUnknown and ok is false.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindAliases[name]
	return k, ok
}

// Integral reports whether k can hold a count.
func (k Kind) Integral() bool {
	return k == KindInt32 || k == KindInt64
}

// Field is one declared field of a bag record.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the declared layout of every record in a Bag.
type Schema struct {
	Fields []Field
}

// CountSchema returns the single-field schema of a well-formed count bag.
func CountSchema(kind Kind) *Schema {
	return &Schema{Fields: []Field{{Name: "count", Kind: kind}}}
}

// Bag is the collection of occurrence counts of one aggregation group.
// Counts may be in any order and may be empty.
type Bag struct {
	Schema *Schema
	Counts []int64
}

// NewBag returns a bag of int64 counts.
func NewBag(counts ...int64) Bag {
	return Bag{Schema: CountSchema(KindInt64), Counts: counts}
}

// Validate checks that the bag declares exactly one integral field.
func (b Bag) Validate() error {
	if b.Schema == nil {
		return &SchemaShapeError{Fields: -1}
	}
	if len(b.Schema.Fields) != 1 {
		return &SchemaShapeError{Fields: len(b.Schema.Fields)}
	}
	if k := b.Schema.Fields[0].Kind; !k.Integral() {
		return &SchemaTypeError{Expected: countKinds, Found: k}
	}
	return nil
}
