package tree

import (
	"reflect"
	"testing"
)

func TestRegistry_ForwardReference(t *testing.T) {
	doc := New()
	root := doc.Add(NoRef, TagVOTable, nil)

	// A FIELDref pointing at a PARAM that is defined later in document
	// order.
	holder := doc.Add(root, TagFieldRef, []Attr{{Name: "ref", Value: "col1"}})
	doc.IDs().Want("col1", holder)

	if _, ok := doc.IDs().Lookup("col1"); ok {
		t.Fatal("Lookup found col1 before definition")
	}

	doc.Add(root, TagField, []Attr{{Name: "ID", Value: "col1"}})

	ref, ok := doc.IDs().Lookup("col1")
	if !ok {
		t.Fatal("Lookup missed col1 after definition")
	}
	if doc.Node(ref).Tag != TagField {
		t.Errorf("col1 resolved to %s, want FIELD", doc.Node(ref).Tag)
	}
	if dangling := doc.IDs().Resolve(); len(dangling) != 0 {
		t.Errorf("Resolve() = %v, want none", dangling)
	}
}

func TestRegistry_DanglingSorted(t *testing.T) {
	doc := New()
	root := doc.Add(NoRef, TagVOTable, nil)
	doc.IDs().Want("zzz", root)
	doc.IDs().Want("aaa", root)
	doc.IDs().Want("mmm", root)

	want := []string{"aaa", "mmm", "zzz"}
	if got := doc.IDs().Resolve(); !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestRegistry_FirstBindingWins(t *testing.T) {
	doc := New()
	root := doc.Add(NoRef, TagVOTable, nil)
	first := doc.Add(root, TagField, []Attr{{Name: "ID", Value: "dup"}})
	doc.Add(root, TagParam, []Attr{{Name: "ID", Value: "dup"}})

	ref, ok := doc.IDs().Lookup("dup")
	if !ok {
		t.Fatal("Lookup missed dup")
	}
	if ref != first {
		t.Errorf("dup resolved to %d, want first binding %d", ref, first)
	}
}

func TestRegistry_GetOrMakeIDIdempotent(t *testing.T) {
	doc := New()
	root := doc.Add(NoRef, TagVOTable, nil)
	table := doc.Add(root, TagTable, nil)

	id := doc.IDs().GetOrMakeID(doc, table)
	if id == "" {
		t.Fatal("GetOrMakeID returned empty id")
	}
	if again := doc.IDs().GetOrMakeID(doc, table); again != id {
		t.Errorf("second GetOrMakeID = %q, want %q", again, id)
	}
	if got := doc.Node(table).Attr("ID"); got != id {
		t.Errorf("ID attribute = %q, want %q", got, id)
	}
	ref, ok := doc.IDs().Lookup(id)
	if !ok || ref != table {
		t.Errorf("Lookup(%q) = %d, %v; want %d, true", id, ref, ok, table)
	}
}

func TestRegistry_SyntheticIDsAvoidCollisions(t *testing.T) {
	doc := New()
	root := doc.Add(NoRef, TagVOTable, nil)
	doc.Add(root, TagField, []Attr{{Name: "ID", Value: "ndmpc0"}})
	table := doc.Add(root, TagTable, nil)

	id := doc.IDs().GetOrMakeID(doc, table)
	if id == "ndmpc0" {
		t.Error("synthetic id collided with a registered one")
	}
}

func TestSchemaFromTable(t *testing.T) {
	doc := New()
	root := doc.Add(NoRef, TagVOTable, nil)
	res := doc.Add(root, TagResource, nil)
	table := doc.Add(res, TagTable, nil)
	doc.Add(table, TagField, []Attr{
		{Name: "name", Value: "ra"},
		{Name: "datatype", Value: "double"},
		{Name: "unit", Value: "deg"},
	})
	f2 := doc.Add(table, TagField, []Attr{
		{Name: "name", Value: "flags"},
		{Name: "datatype", Value: "short"},
	})
	doc.Add(f2, TagValues, []Attr{{Name: "null", Value: "-1"}})
	// A PARAM child must not become a column.
	doc.Add(table, TagParam, []Attr{
		{Name: "name", Value: "epoch"},
		{Name: "datatype", Value: "float"},
		{Name: "value", Value: "2000.0"},
	})

	schema, err := SchemaFromTable(doc, table)
	if err != nil {
		t.Fatalf("SchemaFromTable error: %v", err)
	}
	if schema.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", schema.Len())
	}
	if schema.Fields[0].Name != "ra" || schema.Fields[0].Unit != "deg" {
		t.Errorf("field 0 = %+v", schema.Fields[0])
	}
	if schema.Fields[1].Null != "-1" {
		t.Errorf("field 1 null = %q, want -1", schema.Fields[1].Null)
	}
}

func TestFieldFromElement_LastValuesWins(t *testing.T) {
	doc := New()
	field := doc.Add(NoRef, TagField, []Attr{
		{Name: "name", Value: "x"},
		{Name: "datatype", Value: "int"},
	})
	doc.Add(field, TagValues, []Attr{{Name: "null", Value: "-1"}})
	doc.Add(field, TagValues, []Attr{{Name: "null", Value: "-99"}})

	f, err := FieldFromElement(doc, field)
	if err != nil {
		t.Fatalf("FieldFromElement error: %v", err)
	}
	if f.Null != "-99" {
		t.Errorf("Null = %q, want -99", f.Null)
	}
}
