// Package failfast panics on programmer errors detected at construction time,
// such as a missing dependency. It is not used for runtime input.
package failfast

import (
	"fmt"
	"reflect"
)

// Violation is the panic value raised by this package.
type Violation struct {
	Message string
}

func (v *Violation) Error() string { return "fail-fast: " + v.Message }

// If panics if condition is false
func If(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(&Violation{Message: fmt.Sprintf(format, args...)})
	}
}

// NotNil panics if v is nil, including typed nil pointers, funcs, maps,
// channels and interfaces.
func NotNil(v interface{}, name string) {
	if v == nil {
		panic(&Violation{Message: name + " is nil"})
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		if rv.IsNil() {
			panic(&Violation{Message: name + " is nil"})
		}
	}
}

// NotEmpty panics if s is empty.
func NotEmpty(s, name string) {
	if s == "" {
		panic(&Violation{Message: name + " is empty"})
	}
}
