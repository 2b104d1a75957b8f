// Package buildsys loads packaging tasks from a Starlark task file (tasks.star) and
// runs their commands with the mvdan.cc/sh interpreter. It also provides the
// CommandRunner fallback which hands task names to an external executable instead.
//
// A task file declares its tasks inside a configure() function:
//
//	def configure():
//	    task("package:bootstrap", cmds = ["mkdir -p ext/packaging"])
//	    task("package:tar", deps = ["package:bootstrap"], cmds = [("tar", "-czf", "pkg.tar.gz", "src")])
package buildsys
