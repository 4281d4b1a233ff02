// Package osproc runs bundle processes on the host: Spawner starts them
// with os/exec and reports their exit, Killer delivers SIGKILL through
// x/sys/unix. Code maps kill errors to the integer result codes the
// process cache expects from its owner.
package osproc
