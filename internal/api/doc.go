// Package api exposes the provisioner's ops surface over HTTP: pool
// statistics, the registry of live test databases, and cleanup triggers. It
// acts as an adapter between harness orchestration clients and the lifecycle
// manager, translating HTTP concerns into provisioning operations.
package api
