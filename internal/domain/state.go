package domain

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"
)

// Key is a typed handle for a value stored in State.
type Key[T any] struct{ name string }

// NewKey creates a Key outside this package, e.g. for unit-private data.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's string name.
func (k Key[T]) Name() string { return k.name }

// State keys shared by pipeline units.
var (
	// KeyStreamID names the stream an observation belongs to.
	KeyStreamID = Key[string]{"stream.id"}

	// KeySequence is the 1-based position of the observation in its stream.
	KeySequence = Key[uint64]{"stream.sequence"}

	// KeyInputs holds the raw inputs gathered so far for this observation.
	KeyInputs = Key[[]Input]{"inputs"}

	// KeyWeights holds positional default weights for KeyInputs.
	KeyWeights = Key[[]float64]{"weights"}

	// KeyThresholds holds the resolved discretization thresholds.
	KeyThresholds = Key[Thresholds]{"thresholds"}

	// KeyScalar holds the aggregated scalar, or the observation itself
	// when it arrived as a pre-computed scalar.
	KeyScalar = Key[float64]{"scalar"}

	KeyDecision = Key[Decision]{"decision"}

	// KeyReducerState holds the reducer's state after this observation.
	KeyReducerState = Key[ReducerState]{"reducer.state"}

	// KeyVotes holds textual votes awaiting label voting.
	KeyVotes = Key[[]Vote]{"votes"}

	// KeySubject is the text LLM voters are asked about.
	KeySubject = Key[string]{"subject"}

	KeyRationale = Key[*Rationale]{"rationale"}

	KeyVerdict = Key[*Verdict]{"verdict"}
)

// deepCopyValue copies slices, maps, pointers and exported struct fields so
// that values held in a State cannot be changed through aliases.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			setCopy(out.Index(i), v.Index(i))
		}
		return out.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			elem := reflect.New(v.Type().Elem()).Elem()
			setCopy(elem, iter.Value())
			out.SetMapIndex(iter.Key(), elem)
		}
		return out.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return value
		}
		out := reflect.New(v.Elem().Type())
		setCopy(out.Elem(), v.Elem())
		return out.Interface()

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				setCopy(out.Field(i), v.Field(i))
			}
		}
		return out.Interface()

	default:
		return value
	}
}

// setCopy stores a deep copy of src into dst. Nil interface elements stay
// nil.
func setCopy(dst, src reflect.Value) {
	if src.Kind() == reflect.Interface && src.IsNil() {
		dst.Set(reflect.Zero(dst.Type()))
		return
	}
	copied := deepCopyValue(src.Interface())
	if copied == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return
	}
	dst.Set(reflect.ValueOf(copied))
}

// State is an immutable bag of values flowing through a pipeline. Every
// update returns a new State, so a State can be shared between goroutines.
type State struct {
	data map[string]any
}

// NewState creates a new empty State.
func NewState() State {
	return State{data: make(map[string]any)}
}

// Get returns a copy of the value stored under key. The boolean is false
// when the key is absent or holds a different type.
//
// Example:
//
//	scalar, ok := Get(state, KeyScalar)
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}
	val, ok := deepCopyValue(value).(T)
	return val, ok
}

// MustGet is Get returning a *StateError for a missing or mistyped key.
func MustGet[T any](s State, key Key[T]) (T, error) {
	value, exists := s.data[key.name]
	if !exists {
		var zero T
		return zero, NewStateError(key.name, "Get", ErrKeyNotFound)
	}
	val, ok := deepCopyValue(value).(T)
	if !ok {
		return val, NewStateError(key.name, "Get", fmt.Errorf("%w: have %T", ErrTypeMismatch, value))
	}
	return val, nil
}

// Has reports whether key is present.
func Has[T any](s State, key Key[T]) bool {
	_, ok := s.data[key.name]
	return ok
}

// GetRaw retrieves a value by name. Prefer Get.
func (s State) GetRaw(keyName string) (any, bool) {
	value, exists := s.data[keyName]
	if !exists {
		return nil, false
	}
	return deepCopyValue(value), true
}

// With returns a new State with key set to value.
//
// Example:
//
//	next := With(state, KeyScalar, 0.4)
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any)
	}
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// Without returns a new State with key removed.
func Without[T any](s State, key Key[T]) State {
	newData := maps.Clone(s.data)
	delete(newData, key.name)
	return State{data: newData}
}

// WithRaw sets a value by name. Prefer With.
func (s State) WithRaw(keyName string, value any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any)
	}
	newData[keyName] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple applies several updates with a single clone.
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns the sorted key names present in the State.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s.data))
}

// String returns a string representation of the State for debugging.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// StartState returns the state every pipeline run starts from.
func StartState(stream string, seq uint64, inputs []Input) State {
	return NewState().WithMultiple(map[string]any{
		KeyStreamID.name: stream,
		KeySequence.name: seq,
		KeyInputs.name:   inputs,
	})
}

// AppendInputs returns a new State with extra inputs appended to KeyInputs.
func AppendInputs(s State, extra ...Input) State {
	inputs, _ := Get(s, KeyInputs)
	return With(s, KeyInputs, append(inputs, extra...))
}
