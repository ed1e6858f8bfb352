package domain

import (
	"context"
	"errors"
	"testing"
)

func TestMemStoreLookupByEmailCaseInsensitive(t *testing.T) {
	store := NewMemStore()
	store.Seed(&Record{Email: "Jane@Example.com", MobilePhone: "(919) 555-0101"})

	rec, err := store.LookupLead(context.Background(), "jane@example.com", "")
	if err != nil {
		t.Fatalf("LookupLead() error = %v", err)
	}
	if rec.Email != "Jane@Example.com" {
		t.Errorf("Email = %q", rec.Email)
	}
}

func TestMemStoreLookupByNormalizedPhone(t *testing.T) {
	store := NewMemStore()
	store.Seed(&Record{Email: "jane@example.com", MobilePhone: "(919) 555-0101"})

	rec, err := store.LookupLead(context.Background(), "other@example.com", "919-555-0101")
	if err != nil {
		t.Fatalf("LookupLead() error = %v", err)
	}
	if rec.Email != "jane@example.com" {
		t.Errorf("Email = %q", rec.Email)
	}
}

func TestMemStoreLookupNotFound(t *testing.T) {
	store := NewMemStore()
	_, err := store.LookupLead(context.Background(), "nobody@example.com", "0000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("LookupLead() error = %v, want ErrNotFound", err)
	}
}

func TestMemStoreCreateAndUpdate(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	id, err := store.CreateLead(ctx, "new@example.com", "9195550102")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateLead(ctx, id, map[string]string{"first_name": "Jane", "city": "Raleigh"}); err != nil {
		t.Fatalf("UpdateLead() error = %v", err)
	}

	rec, ok := store.Lead(id)
	if !ok {
		t.Fatal("lead not found after create")
	}
	if v, _ := rec.Field("first_name"); v != "Jane" {
		t.Errorf("first_name = %q", v)
	}
}

func TestMemStoreUpdateRejectsUnknownColumn(t *testing.T) {
	store := NewMemStore()
	id, _ := store.CreateLead(context.Background(), "a@b.com", "9195550103")

	err := store.UpdateLead(context.Background(), id, map[string]string{"pin_code": "1234"})
	if err == nil {
		t.Fatal("UpdateLead() with pin_code column succeeded, want error")
	}
}

func TestMemStoreLookupReturnsCopy(t *testing.T) {
	store := NewMemStore()
	id := store.Seed(&Record{Email: "jane@example.com", MobilePhone: "9195550101"})

	rec, err := store.LookupLead(context.Background(), "jane@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	rec.SetField("first_name", "Evil")

	stored, _ := store.Lead(id)
	if _, ok := stored.Field("first_name"); ok {
		t.Error("mutating a looked-up record changed the stored record")
	}
}

func TestMissingProfileFields(t *testing.T) {
	var nilRec *Record
	if got := len(nilRec.MissingProfileFields()); got != len(RequiredProfileFields) {
		t.Errorf("nil record missing = %d, want %d", got, len(RequiredProfileFields))
	}

	rec := &Record{Email: "a@b.com"}
	rec.SetField("first_name", "Jane")
	rec.SetField("last_name", "Doe")
	rec.SetField("city", "") // empty means unset

	missing := rec.MissingProfileFields()
	want := len(RequiredProfileFields) - 2
	if len(missing) != want {
		t.Errorf("missing = %d fields, want %d", len(missing), want)
	}
	for _, f := range missing {
		if f == "first_name" || f == "last_name" {
			t.Errorf("field %s reported missing but is set", f)
		}
	}
	// Collection order is preserved.
	if missing[0] != "address_line1" {
		t.Errorf("missing[0] = %s, want address_line1", missing[0])
	}
}

func TestCreateHandoffWithoutLead(t *testing.T) {
	store := NewMemStore()
	id, err := store.CreateHandoff(context.Background(), 0, "AUTH_FAIL", map[string]interface{}{"reason": "PIN verification failed"})
	if err != nil {
		t.Fatalf("CreateHandoff() error = %v", err)
	}
	if id == 0 {
		t.Error("handoff id = 0")
	}
	if got := store.Handoffs(); len(got) != 1 || got[0].HandoffType != "AUTH_FAIL" {
		t.Errorf("Handoffs() = %+v", got)
	}
}
