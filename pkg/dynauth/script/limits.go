package script

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
)

// DefaultMaxStringBytes bounds strings and arrays produced by a single
// native call, and strings passed into the host helpers.
const DefaultMaxStringBytes = 1 << 20

// sizeFunc reports the size a native call would produce.
type sizeFunc func(call goja.FunctionCall) int64

// amplifiers are builtins that allocate a caller-chosen amount in one
// uninterruptible call.
var amplifiers = []struct {
	ctor, method string
	size         sizeFunc
}{
	{"String", "repeat", func(call goja.FunctionCall) int64 {
		return mulSat(int64(len(call.This.String())), call.Argument(0).ToInteger())
	}},
	{"String", "padStart", padTarget},
	{"String", "padEnd", padTarget},
	{"Array", "fill", func(call goja.FunctionCall) int64 {
		if o, ok := call.This.(*goja.Object); ok {
			return o.Get("length").ToInteger()
		}
		return 0
	}},
}

func padTarget(call goja.FunctionCall) int64 { return call.Argument(0).ToInteger() }

// mulSat multiplies non-negative sizes, saturating instead of overflowing.
func mulSat(a, b int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

// guardAmplifiers wraps the amplifying builtins so that a call whose result
// would exceed s.maxString throws a TypeError instead of allocating.
func (s *sandbox) guardAmplifiers() error {
	for _, a := range amplifiers {
		proto := s.vm.Get(a.ctor).ToObject(s.vm).Get("prototype").ToObject(s.vm)
		orig, ok := goja.AssertFunction(proto.Get(a.method))
		if !ok {
			return fmt.Errorf("%s.prototype.%s is not a function", a.ctor, a.method)
		}
		name, size := a.ctor+".prototype."+a.method, a.size
		wrapped := func(call goja.FunctionCall) goja.Value {
			if n := size(call); n > int64(s.maxString) {
				panic(s.vm.NewTypeError("%s: result of %d exceeds the sandbox limit of %d", name, n, s.maxString))
			}
			v, err := orig(call.This, call.Arguments...)
			if err != nil {
				panic(err)
			}
			return v
		}
		if err := proto.Set(a.method, wrapped); err != nil {
			return err
		}
	}
	return nil
}

// clip bounds a string handed to a host helper.
func (s *sandbox) clip(in string) (string, bool) {
	if len(in) > s.maxString {
		return "", false
	}
	return in, true
}
