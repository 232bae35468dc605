package registry

import (
	"encoding/json"
	"testing"

	"github.com/dev-console/agentsandbox/internal/model"
)

func sampleAdapter() model.Adapter {
	return model.Adapter{
		Name: "api",
		Methods: map[string]model.AdapterMethodDescriptor{
			"getData": {
				Name: "getData",
				Parameters: map[string]model.ParamSchema{
					"id": {Type: model.ParamNumber, Required: true},
				},
				Execute: func(params json.RawMessage) (any, error) { return map[string]any{"id": 1}, nil },
			},
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New(nil)
	r.Register(sampleAdapter())

	d, ok := r.Lookup("api", "getData")
	if !ok {
		t.Fatalf("expected lookup to succeed")
	}
	if d.Name != "getData" {
		t.Fatalf("got %+v", d)
	}

	if _, ok := r.Lookup("api", "missing"); ok {
		t.Fatalf("expected lookup of unknown method to fail")
	}
	if _, ok := r.Lookup("missing", "x"); ok {
		t.Fatalf("expected lookup of unknown adapter to fail")
	}
}

func TestEnumerateSorted(t *testing.T) {
	r := New(nil)
	r.Register(model.Adapter{Name: "zeta", Methods: map[string]model.AdapterMethodDescriptor{}})
	r.Register(model.Adapter{Name: "alpha", Methods: map[string]model.AdapterMethodDescriptor{}})

	all := r.Enumerate()
	if len(all) != 2 || all[0].Name != "alpha" || all[1].Name != "zeta" {
		t.Fatalf("expected sorted [alpha zeta], got %+v", all)
	}
}

func TestMethodCatalog(t *testing.T) {
	r := New(nil)
	r.Register(sampleAdapter())
	catalog := r.MethodCatalog()
	if len(catalog["api"]) != 1 || catalog["api"][0] != "getData" {
		t.Fatalf("got %+v", catalog)
	}
}

func TestSignature(t *testing.T) {
	d := sampleAdapter().Methods["getData"]
	sig := Signature("api", "getData", d)
	want := "api.getData(id: number): Promise<any>"
	if sig != want {
		t.Fatalf("got %q, want %q", sig, want)
	}
}

func TestInvoke(t *testing.T) {
	r := New(nil)
	r.Register(sampleAdapter())

	result, err := r.Invoke("api", "getData", map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m, ok := result.(map[string]any); !ok || m["id"] != 1 {
		t.Fatalf("got %#v", result)
	}
}

func TestInvoke_UnknownMethod(t *testing.T) {
	r := New(nil)
	if _, err := r.Invoke("api", "missing", nil); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}
