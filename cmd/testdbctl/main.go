// Package main implements testdbctl, the command line entry point for the
// test database provisioner. It hosts the provisioner with its ops API,
// inspects pool state on a running instance, and sweeps databases leaked
// by crashed test runs.
package main

func main() {
	Execute()
}
