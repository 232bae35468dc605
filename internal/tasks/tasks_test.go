package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dev-console/agentsandbox/internal/model"
)

type stubCatalog struct{}

func (stubCatalog) Lookup(adapter, method string) (model.AdapterMethodDescriptor, bool) {
	return model.AdapterMethodDescriptor{}, false
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	r.Register(model.NamedTask{Name: "greet", Run: func(ctx model.TaskContext) (any, error) { return "hi", nil }})

	task, ok := r.Get("greet")
	if !ok || task.Name != "greet" {
		t.Fatalf("expected to find greet, got %+v ok=%v", task, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatalf("expected missing task to not be found")
	}
}

func TestEnumerateSorted(t *testing.T) {
	r := New()
	r.Register(model.NamedTask{Name: "zeta"})
	r.Register(model.NamedTask{Name: "alpha"})
	all := r.Enumerate()
	if len(all) != 2 || all[0].Name != "alpha" || all[1].Name != "zeta" {
		t.Fatalf("got %+v", all)
	}
}

func TestRun_Success(t *testing.T) {
	task := model.NamedTask{
		Name: "add",
		Run: func(ctx model.TaskContext) (any, error) {
			return 42, nil
		},
	}
	res := Run(context.Background(), task, nil, stubCatalog{}, 0)
	if !res.Success || res.Value != 42 {
		t.Fatalf("got %+v", res)
	}
}

func TestRun_Error(t *testing.T) {
	task := model.NamedTask{
		Name: "fails",
		Run: func(ctx model.TaskContext) (any, error) {
			return nil, errors.New("boom")
		},
	}
	res := Run(context.Background(), task, nil, stubCatalog{}, 0)
	if res.Success || res.Error.Message != "boom" {
		t.Fatalf("got %+v", res)
	}
}

func TestRun_Panic(t *testing.T) {
	task := model.NamedTask{
		Name: "panics",
		Run: func(ctx model.TaskContext) (any, error) {
			panic("nope")
		},
	}
	res := Run(context.Background(), task, nil, stubCatalog{}, 0)
	if res.Success || res.Error == nil {
		t.Fatalf("expected failure, got %+v", res)
	}
}

func TestRun_Timeout(t *testing.T) {
	task := model.NamedTask{
		Name: "slow",
		Run: func(ctx model.TaskContext) (any, error) {
			time.Sleep(200 * time.Millisecond)
			return "too late", nil
		},
	}
	res := Run(context.Background(), task, nil, stubCatalog{}, 20)
	if res.Success {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
	if res.Error == nil || res.Error.Name != model.ErrKindTimeout {
		t.Fatalf("expected TimeoutError, got %+v", res.Error)
	}
}
