package typename

// tuple is implemented only by the tuple types of this package.
type tuple interface {
	tupleArity() int
}

// Tuple2 is a two-element tuple. It renders as Tuple<T1,T2> and travels on
// the wire as {"Item1": ..., "Item2": ...}.
type Tuple2[T1, T2 any] struct {
	Item1 T1 `json:"Item1" yaml:"Item1"`
	Item2 T2 `json:"Item2" yaml:"Item2"`
}

func (Tuple2[T1, T2]) tupleArity() int { return 2 }

// Tuple3 is a three-element tuple.
type Tuple3[T1, T2, T3 any] struct {
	Item1 T1 `json:"Item1" yaml:"Item1"`
	Item2 T2 `json:"Item2" yaml:"Item2"`
	Item3 T3 `json:"Item3" yaml:"Item3"`
}

func (Tuple3[T1, T2, T3]) tupleArity() int { return 3 }

// NewTuple2 builds a Tuple2.
func NewTuple2[T1, T2 any](a T1, b T2) Tuple2[T1, T2] {
	return Tuple2[T1, T2]{Item1: a, Item2: b}
}

// NewTuple3 builds a Tuple3.
func NewTuple3[T1, T2, T3 any](a T1, b T2, c T3) Tuple3[T1, T2, T3] {
	return Tuple3[T1, T2, T3]{Item1: a, Item2: b, Item3: c}
}
