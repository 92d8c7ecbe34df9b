//go:build !js && !wasip1 && !ios

package pipe

const supported = true
