package document

import (
	"encoding/json"
	"testing"
)

func TestRoundTripObject(t *testing.T) {
	v := NewObject(map[string]Value{
		"items": NewArray(),
		"total": NewNumber(0),
	})
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Value
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !v.Equal(back) {
		t.Fatalf("round trip mismatch: %+v != %+v", v, back)
	}
}

func TestEqualityAcrossKinds(t *testing.T) {
	if NewNumber(1).Equal(NewString("1")) {
		t.Fatal("number should not equal string")
	}
	if !Null.Equal(Value{}) {
		t.Fatal("zero value should equal Null")
	}
}

func TestFieldOnNonObject(t *testing.T) {
	if !NewString("x").Field("total").IsNull() {
		t.Fatal("Field on a non-object should yield Null")
	}
}

func TestFromAnyMap(t *testing.T) {
	v := FromAny(map[string]interface{}{"x": float64(1)})
	if !v.Field("x").Equal(NewNumber(1)) {
		t.Fatalf("expected field x=1, got %+v", v.Field("x"))
	}
}
