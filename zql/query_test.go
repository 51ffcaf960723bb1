package zql

import (
	"reflect"
	"testing"

	zterr "github.com/zteradb/zteradb-go/errors"
)

func TestGenerateDocument(t *testing.T) {
	sub := NewQuery("address").Select()

	q := NewQuery("user").
		Select().
		SetDatabaseID("db1").
		SetEnv("prod").
		Fields(map[string]interface{}{"name": "Ada"}).
		Filter(map[string]interface{}{"status": "A"}).
		FilterCondition(GreaterOrEqual("age", 21)).
		Sort("name", 1).
		Sort("age", -1).
		Limit(0, 10).
		Count().
		Related("address", sub)

	doc, err := q.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	keys := []string{"db", "sh", "qt", "fl", "fi", "fc", "rf", "st", "lt", "cnt", "env"}
	if len(doc) != len(keys) {
		t.Errorf("document has %d keys, want %d", len(doc), len(keys))
	}
	for _, k := range keys {
		if _, ok := doc[k]; !ok {
			t.Errorf("document missing key %q", k)
		}
	}

	if doc["db"] != "db1" || doc["sh"] != "user" || doc["env"] != "prod" {
		t.Errorf("routing fields wrong: %v", doc)
	}
	if doc["qt"] != int(QuerySelect) {
		t.Errorf("qt = %v", doc["qt"])
	}
	if !reflect.DeepEqual(doc["fl"], map[string]interface{}{"name": "Ada"}) {
		t.Errorf("fl = %v", doc["fl"])
	}
	if !reflect.DeepEqual(doc["fi"], map[string]interface{}{"status": "A"}) {
		t.Errorf("fi = %v", doc["fi"])
	}
	if !reflect.DeepEqual(doc["st"], map[string]interface{}{"name": 1, "age": -1}) {
		t.Errorf("st = %v", doc["st"])
	}
	if !reflect.DeepEqual(doc["lt"], []interface{}{0, 10}) {
		t.Errorf("lt = %v", doc["lt"])
	}
	if doc["cnt"] != true {
		t.Errorf("cnt = %v", doc["cnt"])
	}

	fc, ok := doc["fc"].([]interface{})
	if !ok || len(fc) != 1 {
		t.Fatalf("fc = %v", doc["fc"])
	}

	rf, ok := doc["rf"].(map[string]interface{})
	if !ok {
		t.Fatalf("rf = %v", doc["rf"])
	}
	subDoc, ok := rf["address"].(map[string]interface{})
	if !ok || subDoc["sh"] != "address" {
		t.Errorf("related sub-document = %v", rf["address"])
	}
}

func TestGenerateDefaults(t *testing.T) {
	doc, err := NewQuery("user").Select().Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if doc["lt"] != nil {
		t.Errorf("lt should be null when no limit was set, got %v", doc["lt"])
	}
	if doc["cnt"] != false {
		t.Errorf("cnt should default to false, got %v", doc["cnt"])
	}
	if !reflect.DeepEqual(doc["fc"], []interface{}{}) {
		t.Errorf("fc should be an empty list, got %v", doc["fc"])
	}
}

func TestGenerateRequiresQueryType(t *testing.T) {
	_, err := NewQuery("user").Generate()
	if !zterr.IsValue(err) {
		t.Errorf("expected value error without a query type, got %v", err)
	}
}

func TestEmptySchemaName(t *testing.T) {
	q := NewQuery("").Select()
	if _, err := q.Generate(); !zterr.IsValue(err) {
		t.Errorf("empty schema name should be rejected, got %v", err)
	}
}

func TestReservedFieldNames(t *testing.T) {
	for _, name := range []string{"__schema_name", "__count", "__anything"} {
		q := NewQuery("user").Select().SetField(name, 1)
		if !zterr.IsValue(q.Err()) {
			t.Errorf("reserved name %q should be rejected", name)
		}
	}

	q := NewQuery("user").Select().Fields(map[string]interface{}{"__env": "x"})
	if !zterr.IsValue(q.Err()) {
		t.Error("reserved name via Fields should be rejected")
	}
}

func TestFilterRejectsObjects(t *testing.T) {
	q := NewQuery("user").Select().Filter(map[string]interface{}{
		"status": map[string]interface{}{"nested": true},
	})
	if !zterr.IsValue(q.Err()) {
		t.Error("object filter value should be rejected")
	}

	q = NewQuery("user").Select().Filter(map[string]interface{}{
		"status": []interface{}{"A"},
	})
	if !zterr.IsValue(q.Err()) {
		t.Error("array filter value should be rejected")
	}
}

func TestSortValidation(t *testing.T) {
	if q := NewQuery("u").Select().Sort("", 1); !zterr.IsValue(q.Err()) {
		t.Error("empty sort field should be rejected")
	}
	if q := NewQuery("u").Select().Sort("name", 2); !zterr.IsValue(q.Err()) {
		t.Error("sort order outside {+1,-1} should be rejected")
	}
	if q := NewQuery("u").Select().Sort("name", 0); !zterr.IsValue(q.Err()) {
		t.Error("zero sort order should be rejected")
	}
}

func TestLimitValidation(t *testing.T) {
	if q := NewQuery("u").Select().Limit(0, 0); !zterr.IsValue(q.Err()) {
		t.Error("limit(0,0) should be rejected")
	}
	if q := NewQuery("u").Select().Limit(-1, 1); !zterr.IsValue(q.Err()) {
		t.Error("limit(-1,1) should be rejected")
	}
	if q := NewQuery("u").Select().Limit(5, 3); !zterr.IsValue(q.Err()) {
		t.Error("limit start >= end should be rejected")
	}
	if q := NewQuery("u").Select().Limit(0, 1); q.Err() != nil {
		t.Errorf("limit(0,1) should be accepted: %v", q.Err())
	}
}

func TestSetEnvValidation(t *testing.T) {
	if q := NewQuery("u").Select().SetEnv("production"); !zterr.IsValue(q.Err()) {
		t.Error("unknown env should be rejected")
	}
}

func TestRelatedValidation(t *testing.T) {
	if q := NewQuery("u").Select().Related("", NewQuery("a").Select()); !zterr.IsValue(q.Err()) {
		t.Error("empty related name should be rejected")
	}
	if q := NewQuery("u").Select().Related("a", nil); !zterr.IsValue(q.Err()) {
		t.Error("nil related query should be rejected")
	}
}

func TestRelatedSubQueryErrorPropagates(t *testing.T) {
	bad := NewQuery("a").Select().Limit(3, 1)
	q := NewQuery("u").Select().Related("a", bad)
	if !zterr.IsValue(q.Err()) {
		t.Error("sub-query error should propagate to the parent")
	}
}

func TestSettersAccumulate(t *testing.T) {
	q := NewQuery("u").Select().
		Filter(map[string]interface{}{"a": 1}).
		Filter(map[string]interface{}{"b": 2}).
		SetField("x", 1).
		SetField("x", 2). // overwrite, not duplicate
		Count().
		Count() // latches on

	doc, err := q.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(doc["fi"], map[string]interface{}{"a": 1, "b": 2}) {
		t.Errorf("fi = %v", doc["fi"])
	}
	if !reflect.DeepEqual(doc["fl"], map[string]interface{}{"x": 2}) {
		t.Errorf("fl = %v", doc["fl"])
	}
	if doc["cnt"] != true {
		t.Error("count should stay on")
	}
}

func TestErrorSticks(t *testing.T) {
	q := NewQuery("u").Select().Limit(-1, 1).Sort("name", 1)
	if q.Err() == nil {
		t.Fatal("expected sticky error")
	}
	if _, err := q.Generate(); err == nil {
		t.Error("Generate should surface the sticky error")
	}
}

func TestFilterConditionRejectsErrored(t *testing.T) {
	q := NewQuery("u").Select().FilterCondition(GreaterThan("age"))
	if !zterr.IsValue(q.Err()) {
		t.Error("errored condition should be rejected")
	}

	q = NewQuery("u").Select().FilterCondition(nil)
	if !zterr.IsValue(q.Err()) {
		t.Error("nil condition should be rejected")
	}
}

func TestQueryTypeString(t *testing.T) {
	if QuerySelect.String() != "SELECT" || QueryNone.String() != "NONE" {
		t.Error("QueryType.String mismatch")
	}
}
