// Package plan provides the default plan producer. The kernel treats
// whatever producer it is given as authoritative; this one simply maps a
// prompt onto one primary task plus a configured set of speculative
// expert tasks.
package plan
