package tree

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

// newTestTree returns a tree holding a small user collection.
func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tr := New()
	if _, err := tr.Set("users/1", map[string]any{"name": "Aliou", "age": 30, "score": 10}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	return tr
}

func TestParsePath(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			path string
			want []string
		}{
			{"a", []string{"a"}},
			{"a/b/c", []string{"a", "b", "c"}},
			{"users/1/name", []string{"users", "1", "name"}},
		}
		for _, tt := range tests {
			t.Run(tt.path, func(t *testing.T) {
				got, err := ParsePath(tt.path)
				if err != nil {
					t.Fatalf("ParsePath(%q) error = %v", tt.path, err)
				}
				if !reflect.DeepEqual(got, tt.want) {
					t.Errorf("ParsePath(%q) = %v, want %v", tt.path, got, tt.want)
				}
			})
		}
	})
	t.Run("invalid", func(t *testing.T) {
		for _, p := range []string{"", "/", "a/", "/a", "a//b"} {
			t.Run(p, func(t *testing.T) {
				_, err := ParsePath(p)
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("ParsePath(%q) error = %v, want ErrInvalidPath", p, err)
				}
				if !errors.Is(err, ErrInvalidData) {
					t.Errorf("ParsePath(%q) error = %v, want it to match ErrInvalidData", p, err)
				}
			})
		}
	})
}

func TestJoinPath(t *testing.T) {
	if got, err := JoinPath("users", "1"); err != nil || got != "users/1" {
		t.Errorf("JoinPath() = %q, %v", got, err)
	}
	if _, err := JoinPath("users", "a/b"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("JoinPath() error = %v, want ErrInvalidPath", err)
	}
	if _, err := JoinPath(""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("JoinPath() error = %v, want ErrInvalidPath", err)
	}
}

func TestTree(t *testing.T) {
	t.Run("Exists", func(t *testing.T) {
		tr := newTestTree(t)
		tests := []struct {
			path string
			want bool
		}{
			{"users", true},
			{"users/1", true},
			{"users/1/name", true},
			{"users/2", false},
			{"users/1/name/first", false},
			{"", false},
			{"posts", false},
		}
		for _, tt := range tests {
			if got := tr.Exists(tt.path); got != tt.want {
				t.Errorf("Exists(%q) = %v, want %v", tt.path, got, tt.want)
			}
		}
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("value", func(t *testing.T) {
			tr := newTestTree(t)
			got, err := tr.Get("users/1/name")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != "Aliou" {
				t.Errorf("Get() = %v, want Aliou", got)
			}
		})
		t.Run("missing", func(t *testing.T) {
			tr := newTestTree(t)
			if _, err := tr.Get("users/9"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
		})
		t.Run("returns a copy", func(t *testing.T) {
			tr := newTestTree(t)
			got, _ := tr.Get("users/1")
			got.(map[string]any)["name"] = "changed"
			if v, _ := tr.Get("users/1/name"); v != "Aliou" {
				t.Errorf("tree was modified through Get result: %v", v)
			}
		})
		t.Run("sequence index", func(t *testing.T) {
			tr := New()
			if _, err := tr.Set("post", map[string]any{"tags": []any{"go", "db"}}); err != nil {
				t.Fatal(err)
			}
			if got, err := tr.Get("post/tags/1"); err != nil || got != "db" {
				t.Errorf("Get() = %v, %v, want db", got, err)
			}
			if got, err := tr.Get("post/tags/0"); err != nil || got != "go" {
				t.Errorf("Get() = %v, %v, want go", got, err)
			}
			for _, p := range []string{"post/tags/2", "post/tags/-1", "post/tags/x", "post/tags/+1", "post/tags/01", "post/tags/00"} {
				if tr.Exists(p) {
					t.Errorf("Exists(%q) = true", p)
				}
			}
		})
	})

	t.Run("Set", func(t *testing.T) {
		t.Run("insert then get", func(t *testing.T) {
			tr := New()
			v := map[string]any{"name": "A", "tags": []any{"x"}, "ok": true, "n": nil}
			if _, err := tr.Set("a/b/c", v); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := tr.Get("a/b/c")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, v) {
				t.Errorf("Get() = %v, want %v", got, v)
			}
			if !tr.Exists("a/b") {
				t.Error("intermediate map was not created")
			}
		})
		t.Run("default empty map", func(t *testing.T) {
			tr := New()
			if _, err := tr.Set("empty", nil); err != nil {
				t.Fatal(err)
			}
			got, _ := tr.Get("empty")
			if !reflect.DeepEqual(got, map[string]any{}) {
				t.Errorf("Get() = %#v, want empty map", got)
			}
		})
		t.Run("no double insert", func(t *testing.T) {
			tr := newTestTree(t)
			_, err := tr.Set("users/1", map[string]any{"name": "B"})
			if !errors.Is(err, ErrAlreadyExists) {
				t.Fatalf("Set() error = %v, want ErrAlreadyExists", err)
			}
			if v, _ := tr.Get("users/1/name"); v != "Aliou" {
				t.Errorf("name = %v, want Aliou", v)
			}
		})
		t.Run("invalid data", func(t *testing.T) {
			tests := []struct {
				name  string
				value any
			}{
				{"non-string key", map[int]string{1: "a"}},
				{"scalar", "hello"},
				{"sequence", []any{1, 2}},
				{"func leaf", map[string]any{"f": func() {}}},
				{"channel leaf", map[string]any{"c": make(chan int)}},
				{"empty key", map[string]any{"": 1}},
				{"conflicting types", map[string]any{"rows": []any{
					map[string]any{"id": 1},
					map[string]any{"id": "two"},
				}}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					tr := New()
					if _, err := tr.Set("x", tt.value); !errors.Is(err, ErrInvalidData) {
						t.Errorf("Set() error = %v, want ErrInvalidData", err)
					}
					if tr.Exists("x") || len(tr.Root()) != 0 {
						t.Errorf("tree modified: %v", tr.Root())
					}
				})
			}
		})
		t.Run("intermediate not a map", func(t *testing.T) {
			tr := newTestTree(t)
			_, err := tr.Set("users/1/name/first", map[string]any{})
			if !errors.Is(err, ErrInvalidData) {
				t.Fatalf("Set() error = %v, want ErrInvalidData", err)
			}
			if v, _ := tr.Get("users/1/name"); v != "Aliou" {
				t.Errorf("name = %v", v)
			}
		})
		t.Run("does not alias input", func(t *testing.T) {
			tr := New()
			v := map[string]any{"n": map[string]any{"x": 1.5}}
			if _, err := tr.Set("a", v); err != nil {
				t.Fatal(err)
			}
			v["n"].(map[string]any)["x"] = 2.5
			if got, _ := tr.Get("a/n/x"); got != 1.5 {
				t.Errorf("a/n/x = %v, want 1.5", got)
			}
		})
	})

	t.Run("Edit", func(t *testing.T) {
		t.Run("requires existence", func(t *testing.T) {
			tr := newTestTree(t)
			before := tr.Snapshot()
			if _, err := tr.Edit("users/2", map[string]any{"name": "B"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Edit() error = %v, want ErrNotFound", err)
			}
			if !reflect.DeepEqual(before, tr.Root()) {
				t.Errorf("tree changed: %v", tr.Root())
			}
		})
		t.Run("merge", func(t *testing.T) {
			tr := New()
			if _, err := tr.Set("p", map[string]any{"a": 1, "b": map[string]any{"x": 1}}); err != nil {
				t.Fatal(err)
			}
			got, err := tr.Edit("p", map[string]any{"b": map[string]any{"y": 2}})
			if err != nil {
				t.Fatalf("Edit() error = %v", err)
			}
			want := map[string]any{"a": int64(1), "b": map[string]any{"x": int64(1), "y": int64(2)}}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Edit() = %v, want %v", got, want)
			}
			if v, _ := tr.Get("p"); !reflect.DeepEqual(v, want) {
				t.Errorf("Get() = %v, want %v", v, want)
			}
		})
		t.Run("merge replaces non-map", func(t *testing.T) {
			tr := New()
			if _, err := tr.Set("p", map[string]any{"a": map[string]any{"x": 1}, "s": "str"}); err != nil {
				t.Fatal(err)
			}
			if _, err := tr.Edit("p/s", map[string]any{"k": "v"}); err != nil {
				t.Fatalf("Edit() error = %v", err)
			}
			if _, err := tr.Edit("p", map[string]any{"a": "flat"}); err != nil {
				t.Fatalf("Edit() error = %v", err)
			}
			want := map[string]any{"a": "flat", "s": map[string]any{"k": "v"}}
			if v, _ := tr.Get("p"); !reflect.DeepEqual(v, want) {
				t.Errorf("Get() = %v, want %v", v, want)
			}
		})
		t.Run("increment", func(t *testing.T) {
			tr := New()
			if _, err := tr.Set("p", map[string]any{"score": 10, "lives": 3, "name": "x"}); err != nil {
				t.Fatal(err)
			}
			if _, err := tr.Edit("p", map[string]any{"score": "+5"}); err != nil {
				t.Fatalf("Edit() error = %v", err)
			}
			if v, _ := tr.Get("p/score"); v != int64(15) {
				t.Errorf("score = %#v, want int64(15)", v)
			}
			if _, err := tr.Edit("p", map[string]any{"score": "-2.5", "lives": "-1"}); err != nil {
				t.Fatalf("Edit() error = %v", err)
			}
			if v, _ := tr.Get("p/score"); v != 12.5 {
				t.Errorf("score = %v, want 12.5", v)
			}
			if v, _ := tr.Get("p/lives"); v != int64(2) {
				t.Errorf("lives = %#v, want int64(2)", v)
			}
		})
		t.Run("invalid increment", func(t *testing.T) {
			tests := []struct {
				name  string
				value map[string]any
			}{
				{"not a number", map[string]any{"score": "+abc"}},
				{"missing field", map[string]any{"missing": "+1"}},
				{"non numeric field", map[string]any{"name": "+1"}},
				{"double sign", map[string]any{"score": "+-1"}},
				{"bare sign", map[string]any{"score": "+"}},
				{"infinity", map[string]any{"score": "+Inf"}},
				{"atomic across fields", map[string]any{"score": "+1", "name": "+1"}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					tr := New()
					if _, err := tr.Set("p", map[string]any{"score": 15, "name": "x"}); err != nil {
						t.Fatal(err)
					}
					if _, err := tr.Edit("p", tt.value); !errors.Is(err, ErrInvalidIncrement) {
						t.Fatalf("Edit() error = %v, want ErrInvalidIncrement", err)
					}
					if v, _ := tr.Get("p/score"); v != int64(15) {
						t.Errorf("score = %v, want 15", v)
					}
				})
			}
		})
		t.Run("increment on non-map", func(t *testing.T) {
			tr := New()
			if _, err := tr.Set("p", map[string]any{"n": 1}); err != nil {
				t.Fatal(err)
			}
			if _, err := tr.Edit("p/n", map[string]any{"n": "+1"}); !errors.Is(err, ErrInvalidIncrement) {
				t.Errorf("Edit() error = %v, want ErrInvalidIncrement", err)
			}
		})
		t.Run("validates value", func(t *testing.T) {
			tr := newTestTree(t)
			if _, err := tr.Edit("users/1", "flat"); !errors.Is(err, ErrInvalidData) {
				t.Errorf("Edit() error = %v, want ErrInvalidData", err)
			}
		})
		t.Run("inside sequence", func(t *testing.T) {
			tr := New()
			if _, err := tr.Set("p", map[string]any{"rows": []any{map[string]any{"a": 1}}}); err != nil {
				t.Fatal(err)
			}
			if _, err := tr.Edit("p/rows/0", map[string]any{"a": 2}); !errors.Is(err, ErrInvalidData) {
				t.Errorf("Edit() error = %v, want ErrInvalidData", err)
			}
		})
	})

	t.Run("Remove", func(t *testing.T) {
		tr := newTestTree(t)
		got, err := tr.Remove("users/1/age")
		if err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if got != int64(30) {
			t.Errorf("Remove() = %v, want 30", got)
		}
		if tr.Exists("users/1/age") {
			t.Error("path still exists")
		}
		for _, p := range []string{"users/1/age", "nope/x", "users/1/name/x"} {
			if _, err := tr.Remove(p); !errors.Is(err, ErrNotFound) {
				t.Errorf("Remove(%q) error = %v, want ErrNotFound", p, err)
			}
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		tr := newTestTree(t)
		s := tr.Snapshot()
		s["users"].(map[string]any)["2"] = map[string]any{}
		if tr.Exists("users/2") {
			t.Error("snapshot shares memory with tree")
		}
	})
}

func TestNormalize(t *testing.T) {
	type alias map[string]int
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"ints", map[string]any{"a": int8(1), "b": uint16(2), "c": int64(3)}, map[string]any{"a": int64(1), "b": int64(2), "c": int64(3)}},
		{"large uint", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"json number", json.Number("9007199254740993"), int64(9007199254740993)},
		{"json big number", json.Number("123456789012345678901234567890"), json.Number("123456789012345678901234567890")},
		{"json float", json.Number("2.5e3"), 2500.0},
		{"typed map", alias{"x": 1}, map[string]any{"x": int64(1)}},
		{"string slice", []string{"a", "b"}, []any{"a", "b"}},
		{"array", [2]int{1, 2}, []any{int64(1), int64(2)}},
		{"pointer", ptr(3.5), 3.5},
		{"nil slice", []string(nil), nil},
		{"float32", float32(0.5), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
	t.Run("rejects", func(t *testing.T) {
		for _, v := range []any{struct{}{}, map[bool]int{true: 1}, json.Number("12abc"), math.Inf(1)} {
			if _, err := Normalize(v); !errors.Is(err, ErrInvalidData) {
				t.Errorf("Normalize(%T) error = %v, want ErrInvalidData", v, err)
			}
		}
	})
}

func TestValidateConsistency(t *testing.T) {
	ok := map[string]any{"rows": []any{
		map[string]any{"id": 1, "tag": nil},
		map[string]any{"id": 2, "tag": "x"},
		"scalar",
	}}
	if _, err := Validate(ok); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	nested := map[string]any{"a": map[string]any{"b": []any{
		map[string]any{"v": []any{}},
		map[string]any{"v": map[string]any{}},
	}}}
	if _, err := Validate(nested); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Validate() error = %v, want ErrInvalidData", err)
	}
}

func TestExactIntegers(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		tr := New()
		if _, err := tr.Set("users/1", map[string]any{"id": int64(9007199254740993)}); err != nil {
			t.Fatal(err)
		}
		if got, _ := tr.Get("users/1/id"); got != int64(9007199254740993) {
			t.Errorf("id = %#v, want int64(9007199254740993)", got)
		}
	})

	t.Run("DecodeJSON", func(t *testing.T) {
		got, err := DecodeJSON([]byte(`{"a": 9007199254740993, "b": 12345678901234567890, "c": 123456789012345678901234567890, "d": 1.5, "e": [1, -2]}`))
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]any{
			"a": int64(9007199254740993),
			"b": uint64(12345678901234567890),
			"c": json.Number("123456789012345678901234567890"),
			"d": 1.5,
			"e": []any{int64(1), int64(-2)},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("DecodeJSON() = %#v, want %#v", got, want)
		}
		for _, s := range []string{"", "{", `{"a": 1} {}`, `{"a": 1}x`} {
			if _, err := DecodeJSON([]byte(s)); err == nil {
				t.Errorf("DecodeJSON(%q) succeeded", s)
			}
		}
	})

	t.Run("increment", func(t *testing.T) {
		tests := []struct {
			name string
			cur  any
			op   string
			want any
		}{
			{"past float precision", int64(9007199254740992), "+1", int64(9007199254740993)},
			{"into uint64", int64(math.MaxInt64), "+1", uint64(math.MaxInt64) + 1},
			{"past uint64", uint64(math.MaxUint64), "+1", json.Number("18446744073709551616")},
			{"back to int64", json.Number("18446744073709551616"), "-18446744073709551615", int64(1)},
			{"fraction makes float", int64(10), "-0.5", 9.5},
			{"float stays float", 1.5, "+1", 2.5},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tr := FromMap(map[string]any{"p": map[string]any{"n": tt.cur}})
				if _, err := tr.Edit("p", map[string]any{"n": tt.op}); err != nil {
					t.Fatalf("Edit() error = %v", err)
				}
				if got, _ := tr.Get("p/n"); !reflect.DeepEqual(got, tt.want) {
					t.Errorf("n = %#v, want %#v", got, tt.want)
				}
			})
		}
	})

	t.Run("CompareNumbers", func(t *testing.T) {
		if CompareNumbers(int64(30), 30.0) != 0 {
			t.Error("30 != 30.0")
		}
		if CompareNumbers(uint64(math.MaxUint64), json.Number("18446744073709551616")) >= 0 {
			t.Error("MaxUint64 >= 2^64")
		}
		if CompareNumbers(-1.5, int64(-1)) >= 0 {
			t.Error("-1.5 >= -1")
		}
	})
}

func ptr[T any](v T) *T {
	return &v
}
