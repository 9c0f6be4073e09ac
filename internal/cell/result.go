package cell

// Result is the value produced by a cell's compute function. It is a closed
// variant: either a Single value or a Stream of values. Modeling the two
// shapes explicitly keeps the runtime from sniffing protocols on returned
// objects.
type Result interface {
	isResult()
}

// Single wraps one computed value.
type Single struct {
	Value any
}

// Stream wraps a lazy sequence of values. The runtime fulfills the cell on
// every received value and treats each one as a new generation. The producer
// owns the channel and must close it when the sequence ends; it should stop
// producing once the compute context is cancelled.
type Stream struct {
	C <-chan any
}

func (Single) isResult() {}
func (Stream) isResult() {}

// Of is shorthand for a Single result.
func Of(v any) Result {
	return Single{Value: v}
}

// StreamOf is shorthand for a Stream result.
func StreamOf(c <-chan any) Result {
	return Stream{C: c}
}
