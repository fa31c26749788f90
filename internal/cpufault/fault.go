// Package cpufault defines the CPU exception/fault vocabulary shared by the
// segmentation, decoder, and interrupt-engine packages so none of them need
// to import the cpu package itself (which would create an import cycle).
package cpufault

// Vector numbers for the faults spec.md §4.2/§8 names.
const (
	DivideError    = 0x00 // #DE
	DebugException = 0x01 // #DB
	Breakpoint     = 0x03 // #BP
	Overflow       = 0x04 // #OF
	BoundRange     = 0x05 // #BR
	InvalidOpcode  = 0x06 // #UD
	InvalidTSS     = 0x0A // #TS
	SegmentNotPresent = 0x0B // #NP
	GeneralProtection = 0x0D // #GP
)

// Fault is a restartable CPU exception: the interrupt engine rewinds IP to
// the instruction's start address and delivers Vector, pushing ErrorCode
// for the vectors that carry one.
type Fault struct {
	Vector    uint8
	ErrorCode uint16
	HasError  bool
	Message   string
}

func (f *Fault) Error() string {
	if f.Message != "" {
		return f.Message
	}
	return "cpu fault"
}

// GP builds a #GP fault with the given selector/index as its error code.
func GP(errorCode uint16, msg string) *Fault {
	return &Fault{Vector: GeneralProtection, ErrorCode: errorCode, HasError: true, Message: msg}
}

// NP builds a #NP fault with the given selector as its error code.
func NP(errorCode uint16, msg string) *Fault {
	return &Fault{Vector: SegmentNotPresent, ErrorCode: errorCode, HasError: true, Message: msg}
}

// TS builds a #TS fault with the given selector as its error code.
func TS(errorCode uint16, msg string) *Fault {
	return &Fault{Vector: InvalidTSS, ErrorCode: errorCode, HasError: true, Message: msg}
}

// UD builds a #UD fault (no error code).
func UD(msg string) *Fault {
	return &Fault{Vector: InvalidOpcode, Message: msg}
}

// DE builds a #DE fault (no error code), raised by DIV/IDIV/AAM.
func DE(msg string) *Fault {
	return &Fault{Vector: DivideError, Message: msg}
}

// BR builds a #BR fault (no error code), raised by BOUND.
func BR(msg string) *Fault {
	return &Fault{Vector: BoundRange, Message: msg}
}
