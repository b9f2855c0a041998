// Package classify maps a decoded payload to the branch that handles it.
package classify

import (
	"fmt"
	"reflect"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/aidx"
)

// Kind identifies a classification outcome
type Kind int

const (
	// KindAbsent means decoding produced no value
	KindAbsent Kind = iota
	// KindRequest is a flight leg request
	KindRequest
	// KindNotification is a flight leg notification
	KindNotification
	// KindUnsupported is any other decoded type
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the result of classifying one payload. The set of
// implementations is closed: Request, Notification, Unsupported and Absent.
type Outcome interface {
	Kind() Kind
	outcome()
}

// Request carries a flight leg request
type Request struct {
	Document *aidx.FlightLegRQ
}

// Notification carries a flight leg notification
type Notification struct {
	Document *aidx.FlightLegNotifRQ
}

// Unsupported records the runtime type of a decoded value that has no
// handling branch.
type Unsupported struct {
	TypeTag string
	Value   any
}

// Absent means there was nothing to classify
type Absent struct{}

func (Request) Kind() Kind      { return KindRequest }
func (Notification) Kind() Kind { return KindNotification }
func (Unsupported) Kind() Kind  { return KindUnsupported }
func (Absent) Kind() Kind       { return KindAbsent }

func (Request) outcome()      {}
func (Notification) outcome() {}
func (Unsupported) outcome()  {}
func (Absent) outcome()       {}

// Classify maps a decoded value to exactly one outcome. It never fails.
// A nil value, including a typed nil pointer, is Absent.
func Classify(decoded any) Outcome {
	if isNil(decoded) {
		return Absent{}
	}

	switch v := decoded.(type) {
	case *aidx.FlightLegRQ:
		return Request{Document: v}
	case *aidx.FlightLegNotifRQ:
		return Notification{Document: v}
	default:
		return Unsupported{TypeTag: fmt.Sprintf("%T", decoded), Value: decoded}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
