package conditions

import (
	"context"
	"errors"
	"testing"
)

// fakeFacts is a FactProvider with canned answers. It counts probe
// calls so short-circuit behavior is observable.
type fakeFacts struct {
	properties map[string]string
	commands   map[string]string
	failing    map[string]bool
	files      map[string]bool
	dirs       map[string]bool
	env        map[string]string

	propertyCalls int
	commandCalls  int
}

func (f *fakeFacts) Property(path string) (string, error) {
	f.propertyCalls++
	if v, ok := f.properties[path]; ok {
		return v, nil
	}
	return "", errors.New("unknown property " + path)
}

func (f *fakeFacts) CommandExists(name string) bool {
	_, ok := f.commands[name]
	return ok
}

func (f *fakeFacts) CommandOutput(_ context.Context, name string, _ []string) (string, bool, error) {
	f.commandCalls++
	if f.failing[name] {
		return "", false, errors.New("probe exploded")
	}
	out, ok := f.commands[name]
	return out, ok, nil
}

func (f *fakeFacts) FileExists(path string) bool      { return f.files[path] }
func (f *fakeFacts) DirectoryExists(path string) bool { return f.dirs[path] }

func (f *fakeFacts) EnvVar(name string) (string, bool) {
	v, ok := f.env[name]
	return v, ok
}

func TestEvaluate_NilConditionIsTrue(t *testing.T) {
	if !Evaluate(context.Background(), nil, &fakeFacts{}) {
		t.Error("Expected nil condition to evaluate true")
	}
}

func TestEvaluate_PropertyComparisons(t *testing.T) {
	facts := &fakeFacts{properties: map[string]string{"os.distro": "archlinux"}}

	cases := []struct {
		name string
		cond Property
		want bool
	}{
		{"equals true", Property{Path: "os.distro", Op: OpEquals, Value: "archlinux"}, true},
		{"equals false", Property{Path: "os.distro", Op: OpEquals, Value: "debian"}, false},
		{"not_equals", Property{Path: "os.distro", Op: OpNotEquals, Value: "debian"}, true},
		{"contains", Property{Path: "os.distro", Op: OpContains, Value: "arch"}, true},
		{"starts_with", Property{Path: "os.distro", Op: OpStartsWith, Value: "arch"}, true},
		{"ends_with", Property{Path: "os.distro", Op: OpEndsWith, Value: "linux"}, true},
		{"ends_with false", Property{Path: "os.distro", Op: OpEndsWith, Value: "bsd"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(context.Background(), tc.cond, facts); got != tc.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tc.cond.Describe(), got, tc.want)
			}
		})
	}
}

func TestEvaluate_UnknownPropertyDegradesToFalse(t *testing.T) {
	facts := &fakeFacts{}
	cond := Property{Path: "os.flavor", Op: OpEquals, Value: "x"}
	if Evaluate(context.Background(), cond, facts) {
		t.Error("Expected unknown property to evaluate false")
	}
}

func TestEvaluate_AllOfShortCircuits(t *testing.T) {
	facts := &fakeFacts{properties: map[string]string{"a": "1"}}
	cond := AllOf{Conditions: []Condition{
		Property{Path: "a", Op: OpEquals, Value: "2"},
		Property{Path: "a", Op: OpEquals, Value: "1"},
	}}

	if Evaluate(context.Background(), cond, facts) {
		t.Error("Expected AllOf with a false child to be false")
	}
	if facts.propertyCalls != 1 {
		t.Errorf("Expected evaluation to stop after the first false child, got %d probes", facts.propertyCalls)
	}
}

func TestEvaluate_AnyOfShortCircuits(t *testing.T) {
	facts := &fakeFacts{commands: map[string]string{"git": ""}}
	cond := AnyOf{Conditions: []Condition{
		CommandSucceeds{Command: "git"},
		CommandSucceeds{Command: "hg"},
	}}

	if !Evaluate(context.Background(), cond, facts) {
		t.Error("Expected AnyOf with a true child to be true")
	}
	if facts.commandCalls != 1 {
		t.Errorf("Expected evaluation to stop after the first true child, got %d probes", facts.commandCalls)
	}
}

func TestEvaluate_Not(t *testing.T) {
	facts := &fakeFacts{files: map[string]bool{"/etc/nixos": true}}
	if Evaluate(context.Background(), Not{Condition: FileExists{Path: "/etc/nixos"}}, facts) {
		t.Error("Expected negated true leaf to be false")
	}
	if !Evaluate(context.Background(), Not{Condition: FileExists{Path: "/etc/other"}}, facts) {
		t.Error("Expected negated false leaf to be true")
	}
}

func TestEvaluate_CommandProbes(t *testing.T) {
	facts := &fakeFacts{
		commands: map[string]string{"uname": "6.10.2-zen1-1-zen"},
		failing:  map[string]bool{"broken": true},
	}

	if !Evaluate(context.Background(), CommandExists{Command: "uname"}, facts) {
		t.Error("Expected CommandExists true for a known command")
	}
	if !Evaluate(context.Background(), CommandSucceeds{Command: "uname"}, facts) {
		t.Error("Expected CommandSucceeds true")
	}
	if !Evaluate(context.Background(), CommandContains{Command: "uname", Needle: "zen"}, facts) {
		t.Error("Expected CommandContains to match")
	}
	if Evaluate(context.Background(), CommandContains{Command: "uname", Needle: "lts"}, facts) {
		t.Error("Expected CommandContains to miss")
	}
	if Evaluate(context.Background(), CommandSucceeds{Command: "broken"}, facts) {
		t.Error("Expected probe error to degrade to false")
	}
	if Evaluate(context.Background(), CommandContains{Command: "broken", Needle: "x"}, facts) {
		t.Error("Expected probe error to degrade to false")
	}
}

func TestEvaluate_EnvVar(t *testing.T) {
	facts := &fakeFacts{env: map[string]string{"XDG_SESSION_TYPE": "wayland", "EMPTY": ""}}

	if !Evaluate(context.Background(), EnvVar{Name: "XDG_SESSION_TYPE"}, facts) {
		t.Error("Expected set variable to be true")
	}
	if !Evaluate(context.Background(), EnvVar{Name: "EMPTY"}, facts) {
		t.Error("Expected set-but-empty variable to be true without a value constraint")
	}
	if Evaluate(context.Background(), EnvVar{Name: "MISSING"}, facts) {
		t.Error("Expected unset variable to be false")
	}
	if !Evaluate(context.Background(), EnvVar{Name: "XDG_SESSION_TYPE", Value: "wayland", HasValue: true}, facts) {
		t.Error("Expected matching value to be true")
	}
	if Evaluate(context.Background(), EnvVar{Name: "XDG_SESSION_TYPE", Value: "x11", HasValue: true}, facts) {
		t.Error("Expected mismatching value to be false")
	}
}

func TestEvaluate_NestedCombinators(t *testing.T) {
	facts := &fakeFacts{
		properties: map[string]string{"os.family": "linux"},
		dirs:       map[string]bool{"/sys/firmware/efi": true},
	}

	cond := AllOf{Conditions: []Condition{
		Property{Path: "os.family", Op: OpEquals, Value: "linux"},
		AnyOf{Conditions: []Condition{
			FileExists{Path: "/nonexistent"},
			DirectoryExists{Path: "/sys/firmware/efi"},
		}},
	}}
	if !Evaluate(context.Background(), cond, facts) {
		t.Error("Expected nested combinator tree to be true")
	}
}
