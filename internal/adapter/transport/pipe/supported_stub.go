//go:build js || wasip1 || ios

package pipe

// Child processes cannot be spawned on these targets; use the websocket
// transport instead.
const supported = false
