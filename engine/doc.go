// Package engine manages inference backends. It defines the Engine
// interface that all backends implement, probes the host for hardware
// capabilities, pools loaded engines with bounded capacity, and wraps
// generation with retry and GPU to CPU fallback via the Manager.
package engine
