// Package vm keeps the registry of provisioned virtual machines and their
// resource grants.
package vm
