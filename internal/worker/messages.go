package worker

// Message is the closed set of worker-to-controller messages. The marker
// method keeps the union sealed so a dispatch switch can be exhaustive.
type Message interface {
	message()
}

// Started is the first message of a run, emitted after decode. It fixes the
// slice count so the receiver can reserve every slot before the first chunk.
type Started struct {
	Generation uint64
	Width      int
	Height     int
	SliceCount int
}

// Progress reports percent complete: 0 at decode start, monotonically
// non-decreasing, 100 at or before Done.
type Progress struct {
	Generation uint64
	Percent    int
}

// Chunk carries one encoded slice. Indices are strictly increasing from 0
// with no gaps or repeats.
type Chunk struct {
	Generation uint64
	Index      int
	Data       []byte
	Width      int
	Height     int
}

// Done signals successful completion. Sent exactly once, after the last
// chunk; no messages follow it.
type Done struct {
	Generation uint64
}

// FailureKind classifies a terminal worker failure.
type FailureKind string

const (
	FailureDecode    FailureKind = "decode"
	FailureEncode    FailureKind = "encode"
	FailureTransport FailureKind = "transport"
)

// Failure terminates a run. Sent at most once; no messages follow it.
type Failure struct {
	Generation uint64
	Kind       FailureKind
	Message    string
}

func (Started) message()  {}
func (Progress) message() {}
func (Chunk) message()    {}
func (Done) message()     {}
func (Failure) message()  {}
