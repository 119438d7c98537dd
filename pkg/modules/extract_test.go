package modules

import (
	"errors"
	"strings"
	"testing"

	"github.com/korora-tech/dhd/pkg/conditions"
)

func testExtractor() *Extractor {
	return NewExtractor(Context{User: UserContext{Name: "alice", Home: "/home/alice"}})
}

func TestExtract_MinimalModule(t *testing.T) {
	src := Source{Origin: "min.dhd", Text: `module("base")`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(mods) != 1 {
		t.Fatalf("Expected 1 module, got %d", len(mods))
	}
	if mods[0].Name != "base" {
		t.Errorf("Expected module name base, got %q", mods[0].Name)
	}
	if mods[0].Origin != "min.dhd" {
		t.Errorf("Expected origin min.dhd, got %q", mods[0].Origin)
	}
	if mods[0].Condition != nil {
		t.Errorf("Expected nil condition, got %v", mods[0].Condition)
	}
}

func TestExtract_FullChain(t *testing.T) {
	src := Source{Origin: "dev.dhd", Text: `
module("dev-tools").description("Developer tooling").tags(["dev", "cli"]).depends("base").when(command_exists("git")).actions([
    package_install(names=["ripgrep", "fd"]),
    symlink(source="/usr/bin/fd", target="/usr/local/bin/fdfind", force=True),
])
`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(mods) != 1 {
		t.Fatalf("Expected 1 module, got %d", len(mods))
	}

	mod := mods[0]
	if mod.Description != "Developer tooling" {
		t.Errorf("Expected description, got %q", mod.Description)
	}
	if len(mod.Tags) != 2 || mod.Tags[0] != "dev" || mod.Tags[1] != "cli" {
		t.Errorf("Expected tags [dev cli], got %v", mod.Tags)
	}
	if len(mod.Dependencies) != 1 || mod.Dependencies[0] != "base" {
		t.Errorf("Expected dependency base, got %v", mod.Dependencies)
	}

	exists, ok := mod.Condition.(conditions.CommandExists)
	if !ok {
		t.Fatalf("Expected CommandExists condition, got %T", mod.Condition)
	}
	if exists.Command != "git" {
		t.Errorf("Expected probed command git, got %q", exists.Command)
	}

	if len(mod.Actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(mod.Actions))
	}
	install, ok := mod.Actions[0].(PackageInstall)
	if !ok {
		t.Fatalf("Expected PackageInstall, got %T", mod.Actions[0])
	}
	if len(install.Names) != 2 || install.Names[0] != "ripgrep" {
		t.Errorf("Expected package names [ripgrep fd], got %v", install.Names)
	}
	link, ok := mod.Actions[1].(Symlink)
	if !ok {
		t.Fatalf("Expected Symlink, got %T", mod.Actions[1])
	}
	if !link.Force {
		t.Error("Expected force=True to carry through")
	}
}

func TestExtract_MultipleModulesPerSource(t *testing.T) {
	src := Source{Origin: "multi.dhd", Text: `
module("one")
module("two").depends("one")
`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(mods) != 2 {
		t.Fatalf("Expected 2 modules, got %d", len(mods))
	}
	if mods[0].Name != "one" || mods[1].Name != "two" {
		t.Errorf("Expected modules in declaration order, got %q, %q", mods[0].Name, mods[1].Name)
	}
}

func TestExtract_LambdaContextSubstitution(t *testing.T) {
	src := Source{Origin: "ctx.dhd", Text: `
module("shell").actions(lambda ctx: [
    file_write(destination=ctx.user.home + "/.zshrc", content="export USER=" + ctx.user.name),
])
`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	write, ok := mods[0].Actions[0].(FileWrite)
	if !ok {
		t.Fatalf("Expected FileWrite, got %T", mods[0].Actions[0])
	}
	if write.Destination != "/home/alice/.zshrc" {
		t.Errorf("Expected substituted destination, got %q", write.Destination)
	}
	if write.Content != "export USER=alice" {
		t.Errorf("Expected substituted content, got %q", write.Content)
	}
}

func TestExtract_LiteralConcatenationFolded(t *testing.T) {
	src := Source{Origin: "concat.dhd", Text: `
module("m").actions([directory(path="/opt/" + "tool" + "/bin")])
`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	dir := mods[0].Actions[0].(Directory)
	if dir.Path != "/opt/tool/bin" {
		t.Errorf("Expected folded path /opt/tool/bin, got %q", dir.Path)
	}
}

func TestExtract_ConditionOperators(t *testing.T) {
	src := Source{Origin: "cond.dhd", Text: `
module("m").when(property("os.distro").equals("arch") and not file_exists("/etc/nixos") or env_var("CI"))
`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// or binds looser than and: AnyOf(AllOf(prop, not), env_var)
	anyOf, ok := mods[0].Condition.(conditions.AnyOf)
	if !ok {
		t.Fatalf("Expected AnyOf at root, got %T", mods[0].Condition)
	}
	if len(anyOf.Conditions) != 2 {
		t.Fatalf("Expected 2 disjuncts, got %d", len(anyOf.Conditions))
	}
	allOf, ok := anyOf.Conditions[0].(conditions.AllOf)
	if !ok {
		t.Fatalf("Expected AllOf disjunct, got %T", anyOf.Conditions[0])
	}
	prop, ok := allOf.Conditions[0].(conditions.Property)
	if !ok {
		t.Fatalf("Expected Property leaf, got %T", allOf.Conditions[0])
	}
	if prop.Path != "os.distro" || prop.Op != conditions.OpEquals || prop.Value != "arch" {
		t.Errorf("Unexpected property leaf: %+v", prop)
	}
	if _, ok := allOf.Conditions[1].(conditions.Not); !ok {
		t.Errorf("Expected Not conjunct, got %T", allOf.Conditions[1])
	}
	if _, ok := anyOf.Conditions[1].(conditions.EnvVar); !ok {
		t.Errorf("Expected EnvVar disjunct, got %T", anyOf.Conditions[1])
	}
}

func TestExtract_ConditionCombinatorsAndCommandProbes(t *testing.T) {
	src := Source{Origin: "cond.dhd", Text: `
module("m").when(all_of([
    command("docker", ["info"]).succeeds(),
    command("uname", ["-r"]).contains("zen"),
    any_of([directory_exists("/sys/firmware/efi"), property("os.family").not_equals("darwin")]),
]))
`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	allOf, ok := mods[0].Condition.(conditions.AllOf)
	if !ok {
		t.Fatalf("Expected AllOf, got %T", mods[0].Condition)
	}
	if len(allOf.Conditions) != 3 {
		t.Fatalf("Expected 3 conditions, got %d", len(allOf.Conditions))
	}
	succeeds := allOf.Conditions[0].(conditions.CommandSucceeds)
	if succeeds.Command != "docker" || len(succeeds.Args) != 1 || succeeds.Args[0] != "info" {
		t.Errorf("Unexpected CommandSucceeds: %+v", succeeds)
	}
	contains := allOf.Conditions[1].(conditions.CommandContains)
	if contains.Needle != "zen" {
		t.Errorf("Expected needle zen, got %q", contains.Needle)
	}
	if _, ok := allOf.Conditions[2].(conditions.AnyOf); !ok {
		t.Errorf("Expected nested AnyOf, got %T", allOf.Conditions[2])
	}
}

func TestExtract_EnvVarWithValue(t *testing.T) {
	src := Source{Origin: "env.dhd", Text: `module("m").when(env_var("XDG_SESSION_TYPE", "wayland"))`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	env := mods[0].Condition.(conditions.EnvVar)
	if env.Name != "XDG_SESSION_TYPE" || !env.HasValue || env.Value != "wayland" {
		t.Errorf("Unexpected EnvVar: %+v", env)
	}
}

func TestExtract_RejectsStatements(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"assignment", `x = module("m")`},
		{"function definition", "def make():\n    return module(\"m\")\n"},
		{"for loop", "for i in [1, 2]:\n    module(\"m\")\n"},
		{"if statement", "if True:\n    module(\"m\")\n"},
		{"load", `load("other.dhd", "helper")`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testExtractor().Extract(Source{Origin: "bad.dhd", Text: tc.text})
			var unsup *UnsupportedConstructError
			if !errors.As(err, &unsup) {
				t.Fatalf("Expected UnsupportedConstructError, got: %v", err)
			}
			if unsup.Origin != "bad.dhd" {
				t.Errorf("Expected origin bad.dhd, got %q", unsup.Origin)
			}
			if unsup.Line == 0 {
				t.Error("Expected a source position on the error")
			}
		})
	}
}

func TestExtract_RejectsUnknownCalls(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"unknown root", `configure("m")`, "configure"},
		{"unknown method", `module("m").retries(3)`, "retries"},
		{"unknown action", `module("m").actions([reboot()])`, "reboot"},
		{"unknown condition", `module("m").when(weekday("monday"))`, "weekday"},
		{"free identifier", `module("m").actions([directory(path=prefix)])`, "prefix"},
		{"disallowed ctx member", `module("m").actions(lambda ctx: [directory(path=ctx.user.shell)])`, "shell"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testExtractor().Extract(Source{Origin: "bad.dhd", Text: tc.text})
			var unsup *UnsupportedConstructError
			if !errors.As(err, &unsup) {
				t.Fatalf("Expected UnsupportedConstructError, got: %v", err)
			}
			if !strings.Contains(unsup.Construct, tc.want) {
				t.Errorf("Expected construct mentioning %q, got %q", tc.want, unsup.Construct)
			}
		})
	}
}

func TestExtract_InvalidSyntaxIsParseError(t *testing.T) {
	_, err := testExtractor().Extract(Source{Origin: "broken.dhd", Text: `module("m".actions([`})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Expected ParseError, got: %v", err)
	}
	if parseErr.Origin != "broken.dhd" {
		t.Errorf("Expected origin broken.dhd, got %q", parseErr.Origin)
	}
}

func TestExtract_UnknownActionArgument(t *testing.T) {
	_, err := testExtractor().Extract(Source{Origin: "args.dhd", Text: `
module("m").actions([symlink(source="/a", target="/b", recursive=True)])
`})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Expected ParseError, got: %v", err)
	}
	if !strings.Contains(parseErr.Msg, `unknown argument "recursive"`) {
		t.Errorf("Expected unknown argument message, got %q", parseErr.Msg)
	}
}

func TestExtract_MissingRequiredArgument(t *testing.T) {
	_, err := testExtractor().Extract(Source{Origin: "args.dhd", Text: `
module("m").actions([file_write(content="hello")])
`})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Expected ParseError, got: %v", err)
	}
	if !strings.Contains(parseErr.Msg, `"destination"`) {
		t.Errorf("Expected message naming the missing argument, got %q", parseErr.Msg)
	}
}

func TestExtract_ValidationRejectsBadFieldValues(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"empty package list", `module("m").actions([package_install(names=[])])`},
		{"unknown manager", `module("m").actions([package_install(names=["jq"], manager="pip")])`},
		{"bad checksum", `module("m").actions([http_download(url="https://example.com/x", destination="/tmp/x", checksum="nothex")])`},
		{"bad mode", `module("m").actions([file_write(destination="/tmp/x", content="", mode="rwxr")])`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testExtractor().Extract(Source{Origin: "bad.dhd", Text: tc.text})
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Expected ParseError, got: %v", err)
			}
		})
	}
}

func TestExtract_PositionalActionArgumentsRejected(t *testing.T) {
	_, err := testExtractor().Extract(Source{Origin: "pos.dhd", Text: `
module("m").actions([directory("/opt/tool")])
`})
	var unsup *UnsupportedConstructError
	if !errors.As(err, &unsup) {
		t.Fatalf("Expected UnsupportedConstructError, got: %v", err)
	}
}

func TestExtract_GitConfigEntriesDict(t *testing.T) {
	src := Source{Origin: "git.dhd", Text: `
module("git").actions([git_config(scope="global", entries={"user.name": "Alice", "init.defaultBranch": "main"})])
`}

	mods, err := testExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	cfg := mods[0].Actions[0].(GitConfig)
	if cfg.Scope != "global" {
		t.Errorf("Expected scope global, got %q", cfg.Scope)
	}
	if cfg.Entries["user.name"] != "Alice" || cfg.Entries["init.defaultBranch"] != "main" {
		t.Errorf("Unexpected entries: %v", cfg.Entries)
	}
}

func TestExtract_DuplicateDeclarationsRejected(t *testing.T) {
	cases := []string{
		`module("m").when(env_var("A")).when(env_var("B"))`,
		`module("m").actions([]).actions([])`,
	}
	for _, text := range cases {
		_, err := testExtractor().Extract(Source{Origin: "dup.dhd", Text: text})
		var unsup *UnsupportedConstructError
		if !errors.As(err, &unsup) {
			t.Fatalf("Expected UnsupportedConstructError for %q, got: %v", text, err)
		}
	}
}

func TestExtractAll_CollectsPerSourceErrors(t *testing.T) {
	srcs := []Source{
		{Origin: "good.dhd", Text: `module("good")`},
		{Origin: "bad.dhd", Text: `x = 1`},
		{Origin: "also-good.dhd", Text: `module("also-good")`},
	}

	mods, errs := testExtractor().ExtractAll(srcs)
	if len(mods) != 2 {
		t.Errorf("Expected 2 modules from the healthy sources, got %d", len(mods))
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %d: %v", len(errs), errs)
	}
	var unsup *UnsupportedConstructError
	if !errors.As(errs[0], &unsup) {
		t.Errorf("Expected UnsupportedConstructError, got: %v", errs[0])
	}
}

func TestExtractAll_DuplicateModuleNames(t *testing.T) {
	srcs := []Source{
		{Origin: "a.dhd", Text: `module("base")`},
		{Origin: "b.dhd", Text: `module("base")`},
	}

	mods, errs := testExtractor().ExtractAll(srcs)
	if len(mods) != 1 {
		t.Errorf("Expected 1 module, got %d", len(mods))
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 duplicate error, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "already declared") {
		t.Errorf("Expected duplicate-name message, got: %v", errs[0])
	}
}

func TestModule_HasTag(t *testing.T) {
	mod := Module{Tags: []string{"dev", "desktop"}}
	if !mod.HasTag("dev") {
		t.Error("Expected HasTag(dev) to be true")
	}
	if mod.HasTag("server") {
		t.Error("Expected HasTag(server) to be false")
	}
}
