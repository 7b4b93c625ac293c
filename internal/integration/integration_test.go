package integration

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestResolveUnknownName(t *testing.T) {
	if _, err := Resolve([]string{"print", "telegraph"}, Settings{}); err == nil {
		t.Error("expected error for unknown integration name")
	}
}

func TestResolveKeepsOrder(t *testing.T) {
	integs, err := Resolve([]string{"clipboard", "print"}, Settings{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(integs) != 2 || integs[0].Name() != "clipboard" || integs[1].Name() != "print" {
		t.Errorf("resolved order wrong: %v", integs)
	}
}

func TestCommandRequiresArgv(t *testing.T) {
	if _, err := Resolve([]string{"command"}, Settings{}); err == nil {
		t.Error("expected error for command integration without argv")
	}
}

func TestVaultRequiresPath(t *testing.T) {
	if _, err := Resolve([]string{"vault"}, Settings{}); err == nil {
		t.Error("expected error for vault integration without path")
	}
}

func TestRenderArgv(t *testing.T) {
	argv := []string{"nmcli", "connection", "modify", "IllinoisNet", "802-1x.password", "{password}"}
	got := renderArgv(argv, "s3cret!")
	want := []string{"nmcli", "connection", "modify", "IllinoisNet", "802-1x.password", "s3cret!"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("renderArgv = %v, want %v", got, want)
	}
	if argv[5] != "{password}" {
		t.Error("renderArgv mutated the template")
	}
}

type stubIntegration struct {
	name   string
	err    error
	called *[]string
}

func (s *stubIntegration) Name() string { return s.name }

func (s *stubIntegration) Apply(context.Context, string) error {
	*s.called = append(*s.called, s.name)
	return s.err
}

func TestDispatchContinuesPastFailures(t *testing.T) {
	var called []string
	boom := fmt.Errorf("boom")
	integs := []Integration{
		&stubIntegration{name: "first", called: &called},
		&stubIntegration{name: "second", err: boom, called: &called},
		&stubIntegration{name: "third", called: &called},
	}

	err := Dispatch(context.Background(), integs, "pw")
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(called, want) {
		t.Errorf("called = %v, want %v", called, want)
	}
}

func TestDispatchNoIntegrations(t *testing.T) {
	if err := Dispatch(context.Background(), nil, "pw"); err != nil {
		t.Errorf("Dispatch with no integrations: %v", err)
	}
}
