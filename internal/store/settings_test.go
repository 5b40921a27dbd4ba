package store

import (
	"errors"
	"testing"
)

func TestSettingsRepository(t *testing.T) {
	settings := newTestStore(t).Settings()

	if _, err := settings.Get(KeyActiveKit); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	if err := settings.Set(KeyActiveKit, "kit-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := settings.Set(KeyActiveKit, "kit-2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	v, err := settings.Get(KeyActiveKit)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v != "kit-2" {
		t.Errorf("Get() = %q, want kit-2", v)
	}

	if err := settings.Delete(KeyActiveKit); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := settings.Get(KeyActiveKit); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := settings.Delete("missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}
