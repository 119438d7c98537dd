package policy

// Built-in policies guard the sharpest edges of the action vocabulary.
// Users can add their own via the policy directory; built-ins are
// always active.
var builtinPolicies = []Policy{
	{
		Name:   "privileged-shell",
		Source: "builtin",
		Rego: `package dhd.builtin.privileged_shell

deny contains msg if {
	some module in input.modules
	not module.skipped
	some action in module.actions
	action.kind == "execute_command"
	action.spec.privileged
	action.spec.shell
	msg := sprintf("module %q runs a privileged shell command: %s", [module.name, action.describe])
}
`,
	},
	{
		Name:   "protected-paths",
		Source: "builtin",
		Rego: `package dhd.builtin.protected_paths

protected := ["/etc/passwd", "/etc/shadow", "/etc/sudoers", "/boot"]

destinations contains dest if {
	some module in input.modules
	not module.skipped
	some action in module.actions
	dest := object.get(action.spec, "destination", "")
	dest != ""
}

destinations contains dest if {
	some module in input.modules
	not module.skipped
	some action in module.actions
	dest := object.get(action.spec, "path", "")
	dest != ""
}

deny contains msg if {
	some dest in destinations
	some prefix in protected
	startswith(dest, prefix)
	msg := sprintf("plan touches protected path %s", [dest])
}
`,
	},
	{
		Name:   "curl-pipe-sh",
		Source: "builtin",
		Rego: `package dhd.builtin.curl_pipe_sh

pipes := ["| sh", "| bash"]

warn contains msg if {
	some module in input.modules
	not module.skipped
	some action in module.actions
	action.kind == "execute_command"
	action.spec.shell
	contains(action.spec.command, "curl")
	some pipe in pipes
	contains(action.spec.command, pipe)
	msg := sprintf("module %q pipes a download into a shell: %s", [module.name, action.describe])
}
`,
	},
}
