package flatten

import (
	"reflect"
	"testing"
)

func TestMapRecursive(t *testing.T) {
	in := map[string]any{
		"model": map[string]any{
			"depth": 3,
			"tuning": map[string]any{
				"lr": 0.1,
			},
		},
		"seed": 42,
	}

	got := Map(in, ".", true)
	want := map[string]any{
		"model.depth":     3,
		"model.tuning.lr": 0.1,
		"seed":            42,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map() = %v, want %v", got, want)
	}
}

func TestMapOneLevel(t *testing.T) {
	in := map[string]any{
		"model": map[string]any{
			"depth":  3,
			"tuning": map[string]any{"lr": 0.1},
		},
	}

	got := Map(in, ".", false)
	want := map[string]any{
		"model.depth":  3,
		"model.tuning": map[string]any{"lr": 0.1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map() = %v, want %v", got, want)
	}
}

func TestMapCustomSep(t *testing.T) {
	in := map[string]any{"a": map[string]any{"b": 1}}
	got := Map(in, "__", true)
	if _, ok := got["a__b"]; !ok {
		t.Errorf("Map() = %v, want key a__b", got)
	}
}

func TestMapEmptyNested(t *testing.T) {
	in := map[string]any{"empty": map[string]any{}}
	got := Map(in, ".", true)
	if _, ok := got["empty"]; !ok {
		t.Errorf("Map() = %v, want empty map kept under its key", got)
	}
}

func TestUnflattenRoundTrip(t *testing.T) {
	in := map[string]any{
		"model": map[string]any{
			"depth": 3,
			"tuning": map[string]any{
				"lr": 0.1,
			},
		},
		"seed": 42,
	}

	got := Unflatten(Map(in, ".", true), ".")
	if !reflect.DeepEqual(got, in) {
		t.Errorf("Unflatten(Map()) = %v, want %v", got, in)
	}
}

func TestUnflattenScalar(t *testing.T) {
	got := Unflatten(map[string]any{"plain": "x"}, ".")
	want := map[string]any{"plain": "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unflatten() = %v, want %v", got, want)
	}
}
