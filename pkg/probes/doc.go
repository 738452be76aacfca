// Package probes compiles catalog probe and hook specs into runnable
// closures for the decision engine.
//
// Four built-in runtimes cover the common checks without leaving the
// process: command (PATH lookup or exit status), pkgconfig (module
// presence and minimum version), file (path existence), and platform
// (OS and architecture match). Three scriptable runtimes cover the
// rest: Starlark scripts, Rego policies, and WASI modules speaking the
// probeio line protocol.
//
// Every runtime sees the same request: the package under evaluation,
// the probe kind, the host facts snapshot, and the shared option
// namespace with earlier packages' verdicts. A probe reports a finding
// for the field its kind owns. Determinate negatives are findings;
// only runtime failures surface as errors, which the engine degrades
// to the pre-probe default.
package probes
