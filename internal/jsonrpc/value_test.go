package jsonrpc

import "testing"

func TestValueKinds(t *testing.T) {
	v := ParseString(`{"n":null,"f":false,"t":true,"i":5,"s":"hi","a":[1,2],"o":{"x":1}}`)

	if v.Get("n").Kind() != KindNull {
		t.Error("expected null")
	}
	if v.Get("f").Kind() != KindFalse {
		t.Error("expected false")
	}
	if v.Get("t").Kind() != KindTrue {
		t.Error("expected true")
	}
	if v.Get("i").Kind() != KindNumber || v.Get("i").Int() != 5 {
		t.Error("expected number 5")
	}
	if v.Get("s").Kind() != KindString || v.Get("s").String() != "hi" {
		t.Error("expected string hi")
	}
	if v.Get("a").Kind() != KindArray || len(v.Get("a").Array()) != 2 {
		t.Error("expected 2-element array")
	}
	if v.Get("o").Kind() != KindObject {
		t.Error("expected object")
	}
}

func TestValueMissingFieldDoesNotExist(t *testing.T) {
	v := ParseString(`{"a":1}`)
	if v.Get("missing").Exists() {
		t.Fatal("expected missing field to not exist")
	}
}

func TestValueForEachObject(t *testing.T) {
	v := ParseString(`{"a":1,"b":2}`)
	seen := map[string]int64{}
	v.ForEachObject(func(key string, val Value) bool {
		seen[key] = val.Int()
		return true
	})
	if seen["a"] != 1 || seen["b"] != 2 {
		t.Fatalf("unexpected keys: %+v", seen)
	}
}
