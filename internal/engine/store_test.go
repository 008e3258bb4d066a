package engine

import (
	"reflect"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "vars.count", want: "vars.count"},
		{in: "http1.result.data[0].name", want: "http1.result.data[0].name"},
		{in: "node-1.result", want: "node-1.result"},
		{in: "a[0][1]", want: "a[0][1]"},
		{in: " vars.x ", want: "vars.x"},
		{in: "", wantErr: true},
		{in: "vars.", wantErr: true},
		{in: ".vars", wantErr: true},
		{in: "a[x]", wantErr: true},
		{in: "a[-1]", wantErr: true},
		{in: "a[0", wantErr: true},
		{in: "a b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePath(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.String() != tt.want {
				t.Errorf("got %q, want %q", p.String(), tt.want)
			}
		})
	}
}

func TestStore_SetGet(t *testing.T) {
	s := NewStore()

	if err := s.Set("http1.result", map[string]any{"status": float64(200)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("vars.count", float64(3)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok := s.Get("http1.result.status")
	if !ok || v != float64(200) {
		t.Errorf("http1.result.status = %v, %v", v, ok)
	}
	v, ok = s.Get("vars.count")
	if !ok || v != float64(3) {
		t.Errorf("vars.count = %v, %v", v, ok)
	}
	if _, ok := s.Get("vars.missing"); ok {
		t.Error("vars.missing should not exist")
	}

	// Повторная запись перезаписывает и не дублирует ключ
	if err := s.Set("vars.count", float64(4)); err != nil {
		t.Fatal(err)
	}
	v, _ = s.Get("vars.count")
	if v != float64(4) {
		t.Errorf("vars.count after overwrite = %v", v)
	}

	want := []string{"http1.result", "vars.count"}
	if got := s.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestStore_SetInvalidKey(t *testing.T) {
	s := NewStore()
	if err := s.Set("vars..x", 1); err == nil {
		t.Error("expected error for invalid key")
	}
	if err := s.Set("[0]", 1); err == nil {
		t.Error("expected error for key starting with index")
	}
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	item := map[string]any{"name": "a"}
	if err := s.Set("vars.item", item); err != nil {
		t.Fatal(err)
	}

	// Изменение исходного значения не влияет на хранилище
	item["name"] = "changed"
	v, _ := s.Get("vars.item.name")
	if v != "a" {
		t.Errorf("store aliased caller value: %v", v)
	}

	// Изменение снимка не влияет на хранилище
	snap := s.Snapshot()
	snap["vars"].(map[string]any)["item"].(map[string]any)["name"] = "mutated"
	v, _ = s.Get("vars.item.name")
	if v != "a" {
		t.Errorf("snapshot aliased store: %v", v)
	}
}

func TestStore_Merge(t *testing.T) {
	s := NewStore()
	if err := s.Set("vars.a", float64(1)); err != nil {
		t.Fatal(err)
	}

	err := s.Merge(map[string]any{
		"vars":  map[string]any{"b": float64(2)},
		"http1": map[string]any{"result": map[string]any{"status": float64(201)}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// Вложенные объекты сливаются
	if v, _ := s.Get("vars.a"); v != float64(1) {
		t.Errorf("vars.a = %v, want 1", v)
	}
	if v, _ := s.Get("vars.b"); v != float64(2) {
		t.Errorf("vars.b = %v, want 2", v)
	}
	if v, _ := s.Get("http1.result.status"); v != float64(201) {
		t.Errorf("http1.result.status = %v", v)
	}

	// Листья перезаписываются
	if err := s.Merge(map[string]any{"vars": map[string]any{"a": "x"}}); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get("vars.a"); v != "x" {
		t.Errorf("vars.a = %v, want x", v)
	}
}

func TestStore_Overlay(t *testing.T) {
	base := NewStore()
	if err := base.Set("vars.total", float64(0)); err != nil {
		t.Fatal(err)
	}

	ov := base.Overlay(map[string]any{
		RootLoop: map[string]any{"item": "x", "index": float64(0), "number": float64(1)},
	})

	// Корни overlay видны
	if v, ok := ov.Get("loop.item"); !ok || v != "x" {
		t.Errorf("loop.item = %v, %v", v, ok)
	}
	// Корни базы видны сквозь overlay
	if v, ok := ov.Get("vars.total"); !ok || v != float64(0) {
		t.Errorf("vars.total = %v, %v", v, ok)
	}

	// Записи уходят в базу
	if err := ov.Set("vars.total", float64(5)); err != nil {
		t.Fatal(err)
	}
	if v, _ := base.Get("vars.total"); v != float64(5) {
		t.Errorf("base vars.total = %v, want 5", v)
	}

	// loop.* не протекает в базу
	if _, ok := base.Get("loop.item"); ok {
		t.Error("loop.item leaked into base store")
	}
	if _, ok := base.Snapshot()[RootLoop]; ok {
		t.Error("loop root leaked into base snapshot")
	}
	if _, ok := ov.Snapshot()[RootLoop]; !ok {
		t.Error("overlay snapshot should include loop root")
	}
}

func TestStore_NestedOverlayShadows(t *testing.T) {
	base := NewStore()
	outer := base.Overlay(map[string]any{RootLoop: map[string]any{"index": float64(3)}})
	inner := outer.Overlay(map[string]any{RootLoop: map[string]any{"index": float64(7)}})

	if v, _ := inner.Get("loop.index"); v != float64(7) {
		t.Errorf("inner loop.index = %v, want 7", v)
	}
	if v, _ := outer.Get("loop.index"); v != float64(3) {
		t.Errorf("outer loop.index = %v, want 3", v)
	}
}

func TestStore_LengthOnString(t *testing.T) {
	s := NewStore()
	if err := s.Set("vars.word", "héllo"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get("vars.word.length"); v != float64(5) {
		t.Errorf("length = %v, want 5", v)
	}
}
